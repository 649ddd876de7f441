package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iTwin/presentation-hierarchies/assets"
	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/hierarchy"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/query/sqlexec"
	"github.com/iTwin/presentation-hierarchies/pkg/rules"
)

const (
	rulesFlag        = "rules"
	maxDepthFlag     = "max-depth"
	filterPathFlag   = "filter-path"
	autoExpandFlag   = "auto-expand"
	concurrencyFlag  = "traverse-concurrency"
	identifierSep    = "/"
	instanceIDSep    = "@"
	indentPerLevel   = "  "
	autoExpandSuffix = " [expanded]"
)

func NewTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the hierarchy described by a rules file",
		Long: `Print the hierarchy described by a rules file, depth first.

Without --rules the embedded demo rules are used. Filtering paths are '/'-separated node
identifiers, where instances are written as 'Schema.Class@id' and generic nodes by their id,
e.g. --filter-path 'BisCore.PhysicalModel@0x20/BisCore.PhysicalObject@0x31'.`,
		RunE: runTree,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindConfigFlags(cmd)
		},
	}

	flags := cmd.Flags()
	addConfigFlags(flags)
	flags.String(rulesFlag, "", "the rules file describing the hierarchy (if omitted the embedded demo rules are used)")
	flags.Int(maxDepthFlag, 0, "the number of levels to print (0 prints the whole hierarchy)")
	flags.StringArray(filterPathFlag, nil, "restrict the hierarchy to the nodes on the given path (may be repeated)")
	flags.Bool(autoExpandFlag, false, "mark the nodes leading to filter targets as expanded")
	flags.Int(concurrencyFlag, 4, "the number of sibling levels loaded concurrently")

	return cmd
}

func runTree(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	rulesPath, _ := flags.GetString(rulesFlag)
	maxDepth, _ := flags.GetInt(maxDepthFlag)
	rawPaths, _ := flags.GetStringArray(filterPathFlag)
	autoExpand, _ := flags.GetBool(autoExpandFlag)
	concurrency, _ := flags.GetInt(concurrencyFlag)

	paths := make([]filtering.Path, 0, len(rawPaths))
	for _, raw := range rawPaths {
		p, err := parseFilteringPath(raw)
		if err != nil {
			return err
		}
		p.Options.AutoExpand = autoExpand
		paths = append(paths, p)
	}

	c, err := newCommandContext()
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	db, err := c.openDatastore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize datastore connection: %w", err)
	}
	defer db.Close()

	engine := c.Config.Datastore.Engine
	md, err := metadata.NewCachingProvider(
		sqlexec.NewMetadataProvider(db, engine),
		metadata.WithClassCacheSize(c.Config.Metadata.CacheSize),
	)
	if err != nil {
		return err
	}
	defer md.Close()

	var def *rules.Definition
	if rulesPath == "" {
		doc, err := assets.EmbedRules.ReadFile(assets.DemoRules)
		if err != nil {
			return err
		}
		def, err = rules.Parse(doc, md)
		if err != nil {
			return err
		}
	} else {
		def, err = rules.Load(rulesPath, md)
		if err != nil {
			return err
		}
	}

	locale, err := c.Config.Hierarchy.LocaleTag()
	if err != nil {
		return err
	}
	hc := c.Config.Hierarchy
	provider := hierarchy.NewProvider(
		sqlexec.NewExecutor(db, engine, sqlexec.WithLogger(c.Logger)),
		md,
		def,
		hierarchy.WithLogger(c.Logger),
		hierarchy.WithFilteringPaths(paths...),
		hierarchy.WithLevelSizeLimit(hc.SizeLimit()),
		hierarchy.WithCacheSize(hc.CacheSize),
		hierarchy.WithVariationsCount(hc.VariationsPerPath),
		hierarchy.WithChildrenConcurrency(hc.ChildrenConcurrency),
		hierarchy.WithYieldEvery(hc.YieldEvery),
		hierarchy.WithLocale(locale),
	)
	defer provider.Close()

	c.Logger.Debug("printing hierarchy", zap.String("provider_id", provider.ID()), zap.Int("max_depth", maxDepth))

	out := cmd.OutOrStdout()
	return hierarchy.Traverse(ctx, provider, hierarchy.TraverseOptions{
		MaxDepth:    maxDepth,
		Concurrency: concurrency,
	}, func(n *node.HierarchyNode, depth int) error {
		return printNode(out, n, depth)
	})
}

func printNode(w io.Writer, n *node.HierarchyNode, depth int) error {
	suffix := ""
	if n.AutoExpand {
		suffix = autoExpandSuffix
	}
	_, err := fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(indentPerLevel, depth), n.Label, suffix)
	return err
}

// parseFilteringPath parses a '/'-separated list of 'Schema.Class@id' instance
// identifiers and generic node ids.
func parseFilteringPath(raw string) (filtering.Path, error) {
	var p filtering.Path
	for _, part := range strings.Split(raw, identifierSep) {
		if part == "" {
			return filtering.Path{}, fmt.Errorf("invalid filter path %q: empty identifier", raw)
		}
		className, id, isInstance := strings.Cut(part, instanceIDSep)
		if !isInstance {
			p.Identifiers = append(p.Identifiers, filtering.GenericIdentifier(part))
			continue
		}
		normalized, err := metadata.NormalizeFullClassName(className)
		if err != nil || id == "" {
			return filtering.Path{}, fmt.Errorf("invalid filter path %q: identifier %q must be of the form 'Schema.Class@id'", raw, part)
		}
		p.Identifiers = append(p.Identifiers, filtering.InstanceIdentifier(normalized, id))
	}
	return p, nil
}
