// Package cmd implements the command-line interface for porthole.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/manifest"
	"github.com/porthole-app/porthole/media"
	"github.com/porthole-app/porthole/playback"
	"github.com/porthole-app/porthole/style"
	"github.com/porthole-app/porthole/util"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().BoolP("json", "j", false, "Format the command output as a JSON object")
	resolveCmd.Flags().StringP("quality", "q", "", "Prefer streams whose quality label matches this hint")
	resolveCmd.Flags().StringP("output", "o", "", "Write the JSON result to a file path")
	lo.Must0(viper.BindPFlag(key.ResolverPreferredQuality, resolveCmd.Flags().Lookup("quality")))
	resolveCmd.SetOut(os.Stdout)
}

// resolveOutput is the structured result of a resolve run.
type resolveOutput struct {
	// Target is the stream or file a player would receive.
	Target string `json:"target"`
	// Backend that would play the target.
	Backend string `json:"backend"`
	// Kind of the input reference.
	Kind string `json:"kind"`
	// Selection carries the full resolution outcome for manifest inputs.
	Selection *manifest.Selection `json:"selection,omitempty"`
}

// resolveCmd resolves a target into its playback plan without playing it.
var resolveCmd = &cobra.Command{
	Use:   "resolve [file|url|-]",
	Short: "Resolve a target into its playback plan without playing it",
	Long: `Classify a target and report which backend would play it and through
which stream.

Local media files and direct stream URLs classify by extension alone.
A manifest URL is fetched and resolved; a local non-media file or '-'
is read as a raw manifest document.`,
	Example: "  porthole resolve movie.mkv\n  porthole resolve https://provider.example/episode/1 --json\n  cat manifest.json | porthole resolve -",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			target = args[0]
			asJson = lo.Must(cmd.Flags().GetBool("json"))
			output = lo.Must(cmd.Flags().GetString("output"))
		)

		result, err := resolveTarget(target)
		handleErr(err)

		if output != "" {
			file, err := filesystem.API().Create(output)
			handleErr(err)
			defer util.Ignore(file.Close)

			handleErr(json.NewEncoder(file).Encode(result))
			return
		}

		if asJson {
			handleErr(json.NewEncoder(os.Stdout).Encode(result))
			return
		}

		printResolveSummary(cmd, result)
	},
}

// resolveTarget runs the playback decision pipeline in inspection mode:
// the engine gate always passes so the plan is reported even when the
// engine is missing or disabled.
func resolveTarget(target string) (resolveOutput, error) {
	if target == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return resolveOutput{}, err
		}
		return resolveDocument(raw)
	}

	source := media.ParseTarget(target)

	if source.Kind == media.KindLocalFile && !media.KnownContainer(source.Extension()) {
		raw, err := filesystem.API().ReadFile(source.Target)
		if err != nil {
			return resolveOutput{}, err
		}
		return resolveDocument(raw)
	}

	coordinator := playback.NewCoordinator(inspectionEngine{}, nil, nil)
	decision, err := coordinator.Decide(context.Background(), source)
	if err != nil {
		return resolveOutput{}, err
	}

	return resolveOutput{
		Target:    decision.Target,
		Backend:   decision.Backend.String(),
		Kind:      decision.Source.Kind.String(),
		Selection: decision.Selection,
	}, nil
}

// resolveDocument resolves raw manifest bytes handed in directly.
func resolveDocument(raw []byte) (resolveOutput, error) {
	selection, err := manifest.ConfiguredResolver().Resolve(raw)
	if err != nil {
		return resolveOutput{}, err
	}

	backend := media.BackendExternal
	if selection.NativeCompatible() {
		backend = media.BackendNative
	}

	return resolveOutput{
		Target:    selection.Primary.VideoURL,
		Backend:   backend.String(),
		Kind:      "manifest",
		Selection: selection,
	}, nil
}

// inspectionEngine reports the engine as always available so resolve
// never trips the install gate.
type inspectionEngine struct{}

func (inspectionEngine) IsInstalled() bool { return true }

func (inspectionEngine) Enabled() bool { return true }

func printResolveSummary(cmd *cobra.Command, result resolveOutput) {
	if result.Selection != nil && result.Selection.Title != "" {
		cmd.Println(style.Bold(result.Selection.Title))
	}

	cmd.Printf("%s %s\n", style.Faint("Backend"), result.Backend)
	cmd.Printf("%s  %s\n", style.Faint("Target"), result.Target)

	if result.Selection == nil {
		return
	}

	primary := result.Selection.Primary
	if primary.Quality != "" {
		cmd.Printf("%s %s\n", style.Faint("Quality"), primary.Quality)
	}
	if primary.Split() {
		cmd.Printf("%s   %s\n", style.Faint("Audio"), primary.AudioURL)
	}

	if len(result.Selection.Alternates) > 0 {
		cmd.Println()
		cmd.Println(style.Faint(util.Quantify(len(result.Selection.Alternates), "alternate:", "alternates:")))
		for _, alternate := range result.Selection.Alternates {
			cmd.Printf("  %s %s\n", alternate.String(), style.Faint(alternate.VideoURL))
		}
	}
}

func init() {
	resolveCmd.AddCommand(resolveSchemaCmd)

	resolveSchemaCmd.Flags().BoolP("manifest", "m", false, "Generate the JSON Schema for manifest document inputs instead")
}

// resolveSchemaCmd generates JSON schemas for resolve inputs and outputs.
var resolveSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schemas for structured resolve outputs",
	Run: func(cmd *cobra.Command, args []string) {
		reflector := new(jsonschema.Reflector)
		reflector.Anonymous = true
		reflector.Namer = func(t reflect.Type) string {
			name := t.Name()
			switch strings.ToLower(name) {
			case "selection", "candidate", "document", "entry":
				return filepath.Base(t.PkgPath()) + "." + name
			}

			return name
		}

		var schema *jsonschema.Schema

		switch {
		case lo.Must(cmd.Flags().GetBool("manifest")):
			schema = reflector.Reflect(&manifest.Document{})
		default:
			schema = reflector.Reflect(&resolveOutput{})
		}

		handleErr(json.NewEncoder(os.Stdout).Encode(schema))
	},
}
