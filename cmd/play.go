// Package cmd implements the command-line interface for porthole.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/porthole-app/porthole/bottle"
	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/icon"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/media"
	"github.com/porthole-app/porthole/open"
	"github.com/porthole-app/porthole/playback"
	"github.com/porthole-app/porthole/player"
	"github.com/porthole-app/porthole/style"
	"github.com/porthole-app/porthole/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringP("app", "a", "", "Application to open natively playable targets with instead of the system handler")
}

// playCmd resolves a target and hands it to the matching backend.
var playCmd = &cobra.Command{
	Use:   "play [target]",
	Short: "Play a local file, a direct stream URL or a remote manifest",
	Long: `Classify the target, resolve it into a playable stream and open it.

Local files and direct stream URLs play as-is. Anything else is treated
as a remote manifest: fetched, translated through a matching Lua
translator when needed and resolved into the preferred stream.`,
	Example: "  porthole play movie.mp4\n  porthole play https://provider.example/episode/1",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback(args[0], lo.Must(cmd.Flags().GetString("app")))
	},
}

// runPlayback is the shared pipeline behind the root and play commands:
// classify the target, decide the backend and open the outcome through
// the system handler or the external player.
func runPlayback(target, app string) {
	source := media.ParseTarget(target)

	if source.Kind == media.KindLocalFile {
		exists, err := filesystem.API().Exists(source.Target)
		handleErr(err)
		if !exists {
			handleErr(fmt.Errorf("no such file: %s", source.Target))
		}
	}

	installer := bottle.NewInstaller(bottle.Options{})
	coordinator := playback.NewCoordinator(installer, nil, nil)

	ctx := context.Background()
	decision, err := coordinator.Decide(ctx, source)

	if errors.Is(err, playback.ErrEngineNotInstalled) {
		printEngineRequiredError(source.Target)
		if !offerEngineInstall() {
			os.Exit(1)
		}

		handleErr(installEngine(false, false, true))
		decision, err = coordinator.Decide(ctx, source)
	}

	if errors.Is(err, playback.ErrEngineDisabled) {
		printEngineDisabledError(source.Target)
		os.Exit(1)
	}

	handleErr(err)
	handleErr(openDecision(decision, app))
}

// offerEngineInstall asks whether to provision the engine now. The
// engine.auto_install switch answers yes without prompting.
func offerEngineInstall() bool {
	if viper.GetBool(key.EngineAutoInstall) {
		log.Info("engine missing, auto-install is on")
		return true
	}

	confirm := survey.Confirm{
		Message: "Install the engine now?",
		Default: true,
	}
	var response bool
	if err := survey.AskOne(&confirm, &response); err != nil {
		return false
	}

	return response
}

// openDecision opens a decided target with its backend.
func openDecision(decision *playback.Decision, app string) error {
	title := decision.Source.Target
	if decision.Selection != nil {
		title = decision.Selection.Title
	} else if decision.Source.Kind == media.KindLocalFile {
		title = filepath.Base(decision.Source.Target)
	}

	switch decision.Backend {
	case media.BackendNative:
		with := "the system handler"
		if app != "" {
			with = app
		}
		fmt.Printf("%s Opening %s with %s\n", icon.Get(icon.Film), style.Bold(title), with)
		return open.StartWith(decision.Target, app)
	case media.BackendExternal:
		ensureExternalPlayer()
		return playExternal(decision, title)
	default:
		return fmt.Errorf("no backend can play %s", decision.Source)
	}
}

// playExternal drives the external player and blocks until it exits.
// When the primary stream cannot be opened at all, the alternates from
// the selection are tried in preference order.
func playExternal(decision *playback.Decision, title string) error {
	targets := append([]string{decision.Target}, decision.Fallbacks()...)

	var headers map[string]string
	if decision.Source.Kind == media.KindRemote {
		headers = map[string]string{"Referer": decision.Source.Target}
	}

	p := player.External()
	defer util.Ignore(p.Close)

	var lastErr error
	for i, target := range targets {
		if i > 0 {
			fmt.Printf("%s Stream failed to open, trying alternate %d of %d\n", icon.Get(icon.Warn), i, len(targets)-1)
		}

		if err := p.Play(target, title, headers); err != nil {
			log.Warnf("playing %s: %s", target, err)
			lastErr = err
			continue
		}

		fmt.Printf("%s Playing %s\n", icon.Get(icon.Play), playingLabel(decision, title, i))
		<-p.Wait()
		return nil
	}

	return fmt.Errorf("no stream could be opened: %w", lastErr)
}

// playingLabel renders the status line for the stream at the given
// fallback index, annotated with its quality when known.
func playingLabel(decision *playback.Decision, title string, index int) string {
	label := style.Bold(title)

	if decision.Selection == nil {
		return label
	}

	quality := decision.Selection.Primary.Quality
	if index > 0 {
		quality = decision.Selection.Alternates[index-1].Quality
	}
	if quality != "" {
		label += " " + style.Faint("("+quality+")")
	}

	return label
}
