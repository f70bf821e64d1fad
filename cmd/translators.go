// Package cmd implements the command-line interface for porthole.
package cmd

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/porthole-app/porthole/color"
	"github.com/porthole-app/porthole/constant"
	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/icon"
	"github.com/porthole-app/porthole/manifest"
	"github.com/porthole-app/porthole/style"
	"github.com/porthole-app/porthole/util"
	"github.com/porthole-app/porthole/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func completionTranslatorNames(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return manifest.Translators(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(translatorsCmd)
}

// translatorsCmd serves as the parent command for managing Lua translators.
var translatorsCmd = &cobra.Command{
	Use:   "translators",
	Short: "Manage Lua translators for provider manifests",
	Long: `Manage the Lua translator scripts that turn provider responses into
canonical manifest documents. Scripts live in the translators config
directory, one <name>.lua per provider.`,
}

func init() {
	translatorsCmd.AddCommand(translatorsListCmd)

	translatorsListCmd.Flags().BoolP("raw", "r", false, "Suppress the header in the output")
	translatorsListCmd.SetOut(os.Stdout)
}

// translatorsListCmd displays all installed translator scripts.
var translatorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Display all installed translator scripts",
	Run: func(cmd *cobra.Command, args []string) {
		names := manifest.Translators()
		raw := lo.Must(cmd.Flags().GetBool("raw"))

		if !raw {
			headerStyle := style.New().Foreground(color.HiBlue).Bold(true).Render
			cmd.Println(headerStyle("Installed:"))

			if len(names) == 0 {
				cmd.Println(style.Faint("none, scaffold one with porthole translators gen"))
				return
			}
		}

		for _, name := range names {
			if raw {
				cmd.Println(name)
				continue
			}
			cmd.Printf("%s %s\n", icon.Get(icon.Lua), name)
		}
	},
}

func init() {
	translatorsCmd.AddCommand(translatorsRemoveCmd)

	translatorsRemoveCmd.Flags().StringArrayP("name", "n", []string{}, "Specify the name of the translator(s) to uninstall")
	lo.Must0(translatorsRemoveCmd.RegisterFlagCompletionFunc("name", completionTranslatorNames))
}

// translatorsRemoveCmd uninstalls translator scripts.
var translatorsRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Permanently uninstall specified translator scripts from the system",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range lo.Must(cmd.Flags().GetStringArray("name")) {
			path := filepath.Join(where.Translators(), name+".lua")
			handleErr(filesystem.API().Remove(path))
			fmt.Printf("%s successfully removed %s\n", icon.Get(icon.Check), style.Fg(color.Yellow)(name))
		}
	},
}

func init() {
	translatorsCmd.AddCommand(translatorsGenCmd)

	translatorsGenCmd.Flags().StringP("name", "n", "", "The display name of the new translator")
	translatorsGenCmd.Flags().StringP("url", "u", "", "The base URL of the provider the translator understands")

	lo.Must0(translatorsGenCmd.MarkFlagRequired("name"))
	lo.Must0(translatorsGenCmd.MarkFlagRequired("url"))
}

// translatorsGenCmd scaffolds a boilerplate Lua translator script.
var translatorsGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Scaffold a new Lua translator script using a predefined template",
	Long:  `Generate a boilerplate Lua translator script with the contract functions and metadata.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SetOut(os.Stdout)

		var author string
		usr, err := user.Current()
		if err == nil {
			author = usr.Username
		} else {
			author = "Anonymous"
		}

		s := struct {
			Name        string
			URL         string
			Author      string
			TranslateFn string
			MatchesFn   string
		}{
			Name:        lo.Must(cmd.Flags().GetString("name")),
			URL:         lo.Must(cmd.Flags().GetString("url")),
			Author:      author,
			TranslateFn: constant.TranslateFn,
			MatchesFn:   constant.MatchesFn,
		}

		funcMap := template.FuncMap{
			"repeat": strings.Repeat,
			"plus":   func(a, b int) int { return a + b },
			"max":    util.Max[int],
		}

		tmpl, err := template.New("translator").Funcs(funcMap).Parse(constant.TranslatorTemplate)
		handleErr(err)

		target := filepath.Join(where.Translators(), util.SanitizeFilename(s.Name)+".lua")
		f, err := filesystem.API().Create(target)
		handleErr(err)

		defer util.Ignore(f.Close)

		err = tmpl.Execute(f, s)
		handleErr(err)

		cmd.Println(target)
	},
}

func init() {
	translatorsCmd.AddCommand(translatorsCheckCmd)

	translatorsCheckCmd.Flags().StringP("url", "u", "", "Also evaluate each Matches predicate against this URL")
	translatorsCheckCmd.SetOut(os.Stdout)
}

// translatorsCheckCmd validates translator scripts against the contract.
var translatorsCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate translator scripts against the required contract",
	Long: `Load translator scripts and verify they define the required Translate
function. Without a file argument every installed translator is
checked. With --url the optional Matches predicate is evaluated too.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rawURL := lo.Must(cmd.Flags().GetString("url"))

		var paths []string
		if len(args) == 1 {
			paths = args
		} else {
			for _, name := range manifest.Translators() {
				paths = append(paths, filepath.Join(where.Translators(), name+".lua"))
			}
		}

		if len(paths) == 0 {
			cmd.Println(style.Faint("No translators installed"))
			return
		}

		failed := false
		for _, path := range paths {
			if !reportTranslator(cmd, path, rawURL) {
				failed = true
			}
		}

		if failed {
			os.Exit(1)
		}
	},
}

// reportTranslator vets one script and prints a single outcome line.
func reportTranslator(cmd *cobra.Command, path, rawURL string) bool {
	name := util.FileStem(path)

	hasMatches, matched, err := manifest.Vet(path, rawURL)
	if err != nil {
		cmd.Printf("%s %s: %s\n", icon.Get(icon.Cross), style.Bold(name), err)
		return false
	}

	line := fmt.Sprintf("%s %s", icon.Get(icon.Check), style.Bold(name))

	switch {
	case !hasMatches:
		line += style.Faint(fmt.Sprintf(" (no %s, manual selection only)", constant.MatchesFn))
	case rawURL != "" && matched:
		line += style.Fg(color.Green)(" matches " + rawURL)
	case rawURL != "":
		line += style.Faint(" does not match " + rawURL)
	}

	cmd.Println(line)
	return true
}
