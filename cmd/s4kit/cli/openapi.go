package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michal-majer/s4kit/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi [slug]",
		Short: "Generate OpenAPI specification",
		Long: `Generate an OpenAPI 3.1 specification for one or all routable services.
The spec covers every exposed entity with the supported OData query parameters.`,
		Example: `  s4kit openapi                     # combined spec for all services
  s4kit openapi products            # spec for a single service
  s4kit openapi -o spec.json        # write to file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := ""
			if len(args) > 0 {
				slug = args[0]
			}
			return runOpenAPI(slug, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL to advertise in the spec")

	return cmd
}

func runOpenAPI(slug, baseURL, outputFile string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	var specs []openapi.ServiceSpec
	systems, err := store.ListSystems(ctx)
	if err != nil {
		return fmt.Errorf("list systems: %w", err)
	}
	for _, sys := range systems {
		instances, err := store.ListInstances(ctx, sys.ID)
		if err != nil {
			return fmt.Errorf("list instances: %w", err)
		}
		for _, inst := range instances {
			bindings, err := store.ListInstanceServices(ctx, inst.ID)
			if err != nil {
				return fmt.Errorf("list instance services: %w", err)
			}
			for _, is := range bindings {
				if slug != "" && is.Slug != slug {
					continue
				}
				ss, err := store.GetSystemService(ctx, is.SystemServiceID)
				if err != nil {
					continue
				}
				specs = append(specs, openapi.ServiceSpec{
					Slug:         is.Slug,
					Name:         ss.Name,
					ODataVersion: ss.ODataVersion,
					Entities:     is.EffectiveEntities(ss),
				})
			}
		}
	}

	if slug != "" && len(specs) == 0 {
		return fmt.Errorf("no service found with slug %q", slug)
	}

	doc := openapi.Generate(specs, baseURL)
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
			return fmt.Errorf("write spec: %w", err)
		}
		fmt.Printf("Wrote OpenAPI spec to %s\n", outputFile)
		return nil
	}

	fmt.Println(string(jsonBytes))
	return nil
}
