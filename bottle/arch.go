// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"fmt"
	"runtime"
)

// archTags returns the ordered bottle tags acceptable for a platform,
// newest OS first. Apple Silicon additionally falls back to Intel tags,
// which stay loadable through binary translation.
func archTags(goos, goarch string) []string {
	switch goos + "/" + goarch {
	case "darwin/arm64":
		return []string{
			"arm64_sequoia", "arm64_sonoma", "arm64_ventura", "arm64_monterey",
			"sequoia", "sonoma", "ventura", "monterey",
		}
	case "darwin/amd64":
		return []string{"sequoia", "sonoma", "ventura", "monterey"}
	case "linux/amd64":
		return []string{"x86_64_linux"}
	case "linux/arm64":
		return []string{"arm64_linux"}
	default:
		return nil
	}
}

// selectBottle walks the platform's tag order and returns the first
// artifact present in the formula's bottle table. Architecture-independent
// bottles published under "all" serve as the final fallback.
func selectBottle(formula *Formula) (string, bottleFile, error) {
	return selectBottleFor(formula, runtime.GOOS, runtime.GOARCH)
}

func selectBottleFor(formula *Formula, goos, goarch string) (string, bottleFile, error) {
	files := formula.Bottle.Stable.Files

	for _, tag := range append(archTags(goos, goarch), "all") {
		if file, ok := files[tag]; ok {
			return tag, file, nil
		}
	}

	return "", bottleFile{}, fmt.Errorf("%w: %s on %s/%s", ErrNoCompatibleBottle, formula.Name, goos, goarch)
}
