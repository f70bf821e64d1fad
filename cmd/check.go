// Package cmd implements the command-line interface for porthole.
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/porthole-app/porthole/color"
	"github.com/porthole-app/porthole/icon"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/style"
	"github.com/spf13/viper"
)

// externalPlayerBinary resolves the binary name the external backend will
// launch. IINA goes through LaunchServices, not PATH, and needs no lookup.
func externalPlayerBinary() (binary string, viaLaunchServices bool) {
	configured := viper.GetString(key.PlayerExternal)
	if strings.EqualFold(configured, "iina") {
		return "IINA", true
	}
	if configured == "" {
		return "mpv", false
	}
	return configured, false
}

// ensureExternalPlayer verifies the configured external player is reachable
// before playback is handed to it.
func ensureExternalPlayer() {
	binary, viaLaunchServices := externalPlayerBinary()
	if viaLaunchServices {
		return
	}

	if _, err := exec.LookPath(binary); err != nil {
		printMissingPlayerError(binary)
		os.Exit(1)
	}
}

func printMissingPlayerError(binary string) {
	var installCmd string
	switch runtime.GOOS {
	case "darwin":
		installCmd = "brew install " + binary
	case "linux":
		installCmd = "sudo apt install " + binary // Generic, maybe check distro
	case "windows":
		installCmd = "scoop install " + binary
	}

	suggestion := ""
	if installCmd != "" {
		suggestion = fmt.Sprintf("\n\nTo install it, try running:\n  %s", style.New().Foreground(color.Orange).Bold(true).Render(installCmd))
	}

	printErrorBox(
		"Missing Player",
		fmt.Sprintf("The external player '%s' was not found in your PATH.", binary),
		suggestion,
	)
}

func printEngineRequiredError(target string) {
	printErrorBox(
		"Engine Required",
		fmt.Sprintf("%s Playing %s needs the managed video engine, which is not installed.", icon.Get(icon.Engine), style.Bold(target)),
		fmt.Sprintf("\n\nTo provision it, run:\n  %s", style.New().Foreground(color.Orange).Bold(true).Render("porthole engine install")),
	)
}

func printEngineDisabledError(target string) {
	printErrorBox(
		"Engine Disabled",
		fmt.Sprintf("%s Playing %s needs the managed video engine, but it is switched off.", icon.Get(icon.Engine), style.Bold(target)),
		fmt.Sprintf("\n\nTo enable it, run:\n  %s", style.New().Foreground(color.Orange).Bold(true).Render("porthole config set engine.enabled true")),
	)
}

func printErrorBox(title, body, suggestion string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color.HiRed).
		Padding(1, 2).
		Margin(1, 0)

	heading := style.New().Bold(true).Foreground(color.HiRed).Render(fmt.Sprintf("%s Error: %s", icon.Get(icon.Cross), title))

	fmt.Println(box.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			heading,
			"\n",
			body,
			suggestion,
		),
	))
}
