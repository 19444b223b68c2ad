//go:build docs

package main

import (
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/xspy/internal/settings"
	"github.com/maxgio92/xspy/pkg/cmd"
)

const (
	docsDir        = "docs"
	readmeTemplate = "README.md.tpl"
	readme         = "README.md"
	templateMarker = "{{ .CLI_REFERENCE }}"
)

// linkHandler points the root command to the README and the others to docs/.
func linkHandler(filename string) string {
	if filename == settings.CmdName+".md" {
		return readme
	}
	return path.Join(docsDir, filename)
}

func generate(logger log.Logger) error {
	root := cmd.NewCommand(cmd.NewOptions(cmd.WithLogger(logger)))

	noHeader := func(string) string { return "" }
	if err := doc.GenMarkdownTreeCustom(root, docsDir, noHeader, linkHandler); err != nil {
		return errors.Wrap(err, "failed to generate CLI docs")
	}

	tpl, err := os.ReadFile(readmeTemplate)
	if err != nil {
		return errors.Wrap(err, "failed to read README template")
	}
	ref, err := os.ReadFile(path.Join(docsDir, settings.CmdName+".md"))
	if err != nil {
		return errors.Wrap(err, "failed to read CLI reference")
	}

	out := strings.Replace(string(tpl), templateMarker, string(ref), 1)

	return errors.Wrap(os.WriteFile(readme, []byte(out), 0o644), "failed to write README")
}

func main() {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := generate(logger); err != nil {
		logger.Fatal().Err(err).Msg("docs generation failed")
	}
}
