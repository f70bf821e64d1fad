// Package cmd implements the command-line interface for porthole.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/template"

	"github.com/AlecAivazis/survey/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/porthole-app/porthole/bottle"
	"github.com/porthole-app/porthole/color"
	"github.com/porthole-app/porthole/icon"
	"github.com/porthole-app/porthole/internal/ui"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/style"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(engineCmd)
}

// engineCmd serves as the parent command for managing the provisioned engine.
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Manage the on-demand provisioned video engine",
}

func init() {
	engineCmd.AddCommand(engineInstallCmd)

	engineInstallCmd.Flags().BoolP("force", "f", false, "Reinstall over an existing engine tree")
	engineInstallCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	engineInstallCmd.Flags().BoolP("plain", "p", false, "Print plain progress lines instead of the interactive view")
}

// engineInstallCmd provisions the engine from prebuilt binary bottles.
var engineInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and provision the engine from prebuilt binary bottles",
	Long: `Provision the configured engine formula and its dependency closure.

Every bottle downloads from the public registry, its shared libraries
are flattened into one tree, their load paths are rewritten and the
finished tree is published in a single swap.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			force = lo.Must(cmd.Flags().GetBool("force"))
			yes   = lo.Must(cmd.Flags().GetBool("yes"))
			plain = lo.Must(cmd.Flags().GetBool("plain"))
		)

		handleErr(installEngine(force, plain, yes))
	},
}

// installEngine runs the provisioning pipeline behind a progress view.
// The interactive view renders unless plain is requested or stdout is
// not a terminal.
func installEngine(force, plain, yes bool) error {
	if !yes {
		confirm := survey.Confirm{
			Message: fmt.Sprintf("Provision the %s engine and its dependencies?", viper.GetString(key.EngineFormula)),
			Default: true,
		}
		var response bool
		if err := survey.AskOne(&confirm, &response); err != nil {
			return err
		}
		if !response {
			return nil
		}
	}

	events := make(chan bottle.Event, 64)
	result := make(chan error, 1)

	installer := bottle.NewInstaller(bottle.Options{
		// Download events are sampled when the view lags behind;
		// stage transitions always land.
		Progress: func(event bottle.Event) {
			if event.Stage == bottle.StageDownload {
				select {
				case events <- event:
				default:
				}
				return
			}
			events <- event
		},
	})

	go func() {
		result <- installer.Install(context.Background(), bottle.InstallOptions{Force: force})
		close(events)
	}()

	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return plainInstall(events, result)
	}

	model := ui.NewInstall(events, result)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return err
	}

	return model.Err()
}

// plainInstall consumes install events as log-friendly lines, with a
// byte progress bar per bottle download.
func plainInstall(events <-chan bottle.Event, result <-chan error) error {
	var (
		bar  *progressbar.ProgressBar
		last string
	)

	for event := range events {
		if event.Stage == bottle.StageDownload {
			if marker := "download " + event.Formula; last != marker {
				last = marker
				bar = progressbar.DefaultBytes(event.Total, icon.Get(icon.Download)+" downloading "+event.Formula)
			}
			_ = bar.Set64(event.Current)
			continue
		}

		marker := string(event.Stage) + " " + event.Formula
		if last == marker {
			continue
		}
		last = marker
		bar = nil
		fmt.Printf("%s %s\n", icon.Get(icon.Progress), ui.StageLabel(event.Stage, event.Formula))
	}

	if err := <-result; err != nil {
		if bar != nil {
			_, _ = fmt.Fprintln(os.Stderr)
		}
		return err
	}

	fmt.Printf("%s Engine installed\n", icon.Get(icon.Check))
	return nil
}

func init() {
	engineCmd.AddCommand(engineStatusCmd)

	engineStatusCmd.Flags().BoolP("json", "j", false, "Format the output as a JSON string")
	engineStatusCmd.Flags().BoolP("check", "c", false, "Check the registry for a newer engine version")
	engineStatusCmd.SetOut(os.Stdout)
}

// engineStatusCmd displays the engine's lifecycle state and install receipt.
var engineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the engine's lifecycle state and install receipt",
	Run: func(cmd *cobra.Command, args []string) {
		installer := bottle.NewInstaller(bottle.Options{})
		status := installer.Status()

		info := struct {
			State   bottle.State    `json:"state"`
			Reason  string          `json:"reason,omitempty"`
			Enabled bool            `json:"enabled"`
			Ready   bool            `json:"ready"`
			Upgrade string          `json:"upgrade,omitempty"`
			Receipt *bottle.Receipt `json:"receipt,omitempty"`
		}{
			State:   status.State,
			Reason:  status.Reason,
			Enabled: installer.Enabled(),
			Ready:   installer.IsReady(),
		}

		if receipt, err := installer.Receipt(); err == nil {
			info.Receipt = &receipt
		}

		if lo.Must(cmd.Flags().GetBool("check")) && info.Receipt != nil {
			latest, newer, err := installer.UpgradeAvailable(context.Background())
			handleErr(err)
			if newer {
				info.Upgrade = latest
			}
		}

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(info))
			return
		}

		t, err := template.New("status").Funcs(map[string]any{
			"faint":   style.Faint,
			"bold":    style.Bold,
			"magenta": style.Fg(color.Purple),
			"green":   style.Fg(color.Green),
			"red":     style.Fg(color.Red),
		}).Parse(`{{ magenta "▇▇▇" }} {{ magenta "engine" }}

  {{ faint "State" }}      {{ bold (printf "%v" .State) }}{{ if .Reason }} {{ red .Reason }}{{ end }}
  {{ faint "Enabled" }}    {{ bold (printf "%v" .Enabled) }}
  {{ faint "Ready" }}      {{ bold (printf "%v" .Ready) }}
{{- if .Receipt }}
  {{ faint "Formula" }}    {{ bold .Receipt.Formula }} {{ .Receipt.Version }}
  {{ faint "Formulae" }}   {{ len .Receipt.Formulae }}
  {{ faint "Libraries" }}  {{ len .Receipt.Libraries }}
  {{ faint "Installed" }}  {{ .Receipt.InstalledAt.Format "2006-01-02 15:04 MST" }}
{{- else }}

  {{ faint "Provision it with" }} {{ bold "porthole engine install" }}
{{- end }}
{{- if .Upgrade }}

  {{ green "Upgrade available:" }} {{ bold .Upgrade }} {{ faint "(run porthole engine install --force)" }}
{{- end }}
`)
		handleErr(err)
		handleErr(t.Execute(cmd.OutOrStdout(), info))
	},
}

func init() {
	engineCmd.AddCommand(engineUninstallCmd)

	engineUninstallCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}

// engineUninstallCmd removes the provisioned engine tree.
var engineUninstallCmd = &cobra.Command{
	Use:     "uninstall",
	Short:   "Remove the provisioned engine tree from the system",
	Aliases: []string{"remove"},
	Run: func(cmd *cobra.Command, args []string) {
		if !lo.Must(cmd.Flags().GetBool("yes")) {
			confirm := survey.Confirm{
				Message: "Remove the installed engine?",
				Default: false,
			}
			var response bool
			handleErr(survey.AskOne(&confirm, &response))
			if !response {
				return
			}
		}

		installer := bottle.NewInstaller(bottle.Options{})
		handleErr(installer.Uninstall())
		fmt.Printf("%s Engine removed\n", icon.Get(icon.Check))
	},
}

func init() {
	engineCmd.AddCommand(engineTokenCmd)
	engineTokenCmd.AddCommand(engineTokenSetCmd)
	engineTokenCmd.AddCommand(engineTokenClearCmd)
}

// engineTokenCmd manages the registry credential used for bottle downloads.
var engineTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the registry credential used for bottle downloads",
	Long: `Configure an optional registry credential in the system keyring.

Anonymous pulls work for public bottles; a credential in user:token
form lifts the registry's anonymous rate limits.`,
}

// engineTokenSetCmd stores a registry credential in the system keyring.
var engineTokenSetCmd = &cobra.Command{
	Use:   "set [credential]",
	Short: "Store a registry credential in the system keyring",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var credential string

		if len(args) == 1 {
			credential = args[0]
		} else {
			input := survey.Password{Message: "Registry credential (user:token):"}
			handleErr(survey.AskOne(&input, &credential))
		}

		if credential == "" {
			handleErr(errors.New("credential must not be empty"))
		}

		handleErr(bottle.SetCredential(credential))
		fmt.Printf("%s Credential stored\n", icon.Get(icon.Check))
	},
}

// engineTokenClearCmd removes the stored registry credential.
var engineTokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored registry credential",
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(bottle.DeleteCredential())
		fmt.Printf("%s Credential removed\n", icon.Get(icon.Check))
	},
}
