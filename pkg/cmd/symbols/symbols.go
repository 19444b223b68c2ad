package symbols

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xspy/internal/utils"
	"github.com/maxgio92/xspy/pkg/cmd/options"
	"github.com/maxgio92/xspy/pkg/procmaps"
	"github.com/maxgio92/xspy/pkg/symtable"
)

const (
	CmdName = "symbols"

	outputText = "text"
	outputJSON = "json"
)

var ErrNoImage = errors.New("either --path or --pid must be specified")

type Options struct {
	path        string
	loadAddress string
	pid         int
	match       string
	output      string

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Resolve the symbols and the BSS region of executable images",
		Long: fmt.Sprintf(`
%s prints the symbol table and the BSS region of an ELF, Mach-O or PE image,
with addresses adjusted to where the image is loaded.
With --pid, the load address is read from the process mappings, and without --path
every executable image mapped by the process is resolved.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.path, "path", "p", "", "Path to the executable image")
	cmd.Flags().StringVar(&o.loadAddress, "load-address", "0", "Address the image is loaded at (decimal or 0x hex)")
	cmd.Flags().IntVar(&o.pid, "pid", -1, "Read load addresses from the mappings of the process")
	cmd.Flags().StringVar(&o.match, "match", "", "Regex pattern to filter symbol names")
	cmd.Flags().StringVarP(&o.output, "output", "o", outputText, "Output format (text, json)")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if o.output != outputText && o.output != outputJSON {
		return errors.Errorf("unsupported output format %q", o.output)
	}

	var match *regexp.Regexp
	if o.match != "" {
		var err error
		if match, err = regexp.Compile(o.match); err != nil {
			return errors.Wrap(err, "invalid match pattern")
		}
	}

	images, err := o.images(cmd.Flags().Changed("load-address"))
	if err != nil {
		return err
	}

	var infos map[string]*symtable.BinaryInfo
	if o.path != "" {
		info, err := symtable.Resolve(images[0].Path, images[0].LoadAddress)
		if err != nil {
			return err
		}
		infos = map[string]*symtable.BinaryInfo{o.path: info}
	} else {
		infos = symtable.ResolveAll(images, o.Logger)
		if len(infos) == 0 {
			return errors.Errorf("no image of process %d could be resolved", o.pid)
		}
	}
	if match != nil {
		for _, info := range infos {
			info.Symbols = lo.PickBy(info.Symbols, func(name string, _ uint64) bool {
				return match.MatchString(name)
			})
		}
	}

	if o.output == outputJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}

	paths := lo.Keys(infos)
	sort.Strings(paths)
	for _, path := range paths {
		printInfo(cmd.OutOrStdout(), path, infos[path])
	}

	return nil
}

func (o *Options) images(loadAddressSet bool) ([]symtable.Image, error) {
	switch {
	case o.path == "" && o.pid > 0:
		images, err := procmaps.ExecutableImages(o.pid)
		if err != nil {
			return nil, err
		}
		o.Logger.Debug().Int("pid", o.pid).Int("images", len(images)).Msg("found executable images")
		return images, nil
	case o.path == "":
		return nil, ErrNoImage
	}

	image := symtable.Image{Path: o.path}
	if o.pid > 0 && !loadAddressSet {
		load, err := procmaps.LoadAddress(o.pid, o.path)
		if err != nil {
			return nil, err
		}
		image.LoadAddress = load
		return []symtable.Image{image}, nil
	}

	load, err := utils.ParseAddress(o.loadAddress)
	if err != nil {
		return nil, err
	}
	image.LoadAddress = load

	return []symtable.Image{image}, nil
}

func printInfo(w io.Writer, path string, info *symtable.BinaryInfo) {
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  bss %s size %#x\n", utils.FormatAddress(info.BSSAddr), info.BSSSize)
	for _, name := range info.SymbolNames() {
		fmt.Fprintf(w, "  %s %s\n", utils.FormatAddress(info.Symbols[name]), name)
	}
}
