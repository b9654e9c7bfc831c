// Command appxbuild assembles a Microsoft APPX or APPXBUNDLE package
// from a directory, a set of files, or a mapping file, optionally
// signing it with a PKCS#12 certificate or a PKCS#11 smartcard/HSM key.
// Grounded on the teacher's single-root-command cobra shape
// (cmdline/main.go, since deleted from this tree but reflected here: no
// subcommands, package-level flag variables, a RunE that translates
// flags into an operation and reports one error line on failure).
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sassoftware/appxbuild/internal/apperr"
	"github.com/sassoftware/appxbuild/internal/applog"
	"github.com/sassoftware/appxbuild/internal/appxpack"
	"github.com/sassoftware/appxbuild/internal/mapping"
	"github.com/sassoftware/appxbuild/internal/sign"
	"github.com/sassoftware/appxbuild/lib/atomicfile"
)

var (
	outputPath       string
	certPath         string
	modulePath       string
	slotID           int
	keyID            int
	pin              string
	mapFile          string
	isBundle         bool
	compressionLevel int
	verbose          bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "appxbuild [flags] INPUT...",
		Short:         "Build a Microsoft APPX or APPXBUNDLE package",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&outputPath, "output", "o", "", "write the package to output-file (required)")
	flags.StringVarP(&certPath, "cert", "c", "", "sign the package with the private key in a PKCS#12 file")
	flags.StringVarP(&modulePath, "module", "m", "", "PKCS#11 module to use for smartcard signing")
	flags.IntVarP(&slotID, "slot", "s", -1, "PKCS#11 smartcard slot id")
	flags.IntVarP(&keyID, "key", "k", -1, "PKCS#11 smartcard key id")
	flags.StringVarP(&pin, "pin", "p", "", "PKCS#11 PIN (falls back to APPX_PIV_PIN)")
	flags.StringVarP(&mapFile, "map", "f", "", `mapping file listing inputs ("-" for stdin)`)
	flags.BoolVarP(&isBundle, "bundle", "b", false, "produce an APPXBUNDLE instead of an APPX")
	flags.IntVar(&compressionLevel, "compression", 0, "ZIP compression level 0 (store) to 9 (best)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	for level := 0; level <= 9; level++ {
		l := level
		flags.BoolP(strconv.Itoa(level), strconv.Itoa(level), false, fmt.Sprintf("shorthand for -%d compression level", l))
	}
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	log := applog.New(verbose)

	for level := 0; level <= 9; level++ {
		if v, _ := cmd.Flags().GetBool(strconv.Itoa(level)); v {
			compressionLevel = level
		}
	}

	if outputPath == "" {
		return reportAndFail(cmd.OutOrStderr(), fmt.Errorf("missing required -o output-file"))
	}
	if certPath != "" && modulePath != "" {
		return reportAndFail(cmd.OutOrStderr(), apperr.IncompatibleOptions{A: "c", B: "m"})
	}

	files, err := resolveInputs(mapFile, args)
	if err != nil {
		return reportAndFail(cmd.OutOrStderr(), err)
	}
	if len(files) == 0 {
		return reportAndFail(cmd.OutOrStderr(), fmt.Errorf("no inputs given"))
	}

	keySource, err := resolveKeySource()
	if err != nil {
		return reportAndFail(cmd.OutOrStderr(), err)
	}

	out, err := atomicfile.WriteAny(outputPath)
	if err != nil {
		return reportAndFail(cmd.OutOrStderr(), apperr.IoError{Path: outputPath, Err: err})
	}
	defer out.Close()

	inputs := make([]appxpack.InputFile, 0, len(files))
	for archiveName, localPath := range files {
		localPath := localPath
		inputs = append(inputs, appxpack.InputFile{
			ArchiveName: archiveName,
			Open: func() (io.ReadCloser, error) {
				return os.Open(localPath)
			},
		})
		log.Debug().Str("archive", archiveName).Str("local", localPath).Msg("mapped input")
	}

	opts := appxpack.Options{IsBundle: isBundle, CompressionLevel: compressionLevel, KeySource: keySource}
	log.Info().Int("files", len(inputs)).Bool("bundle", isBundle).Int("level", compressionLevel).Msg("building package")
	if err := appxpack.WriteAppx(out, inputs, opts); err != nil {
		return reportAndFail(cmd.OutOrStderr(), err)
	}
	if err := out.Commit(); err != nil {
		return reportAndFail(cmd.OutOrStderr(), apperr.IoError{Path: outputPath, Err: err})
	}
	log.Info().Str("output", outputPath).Msg("package written")
	return nil
}

func resolveInputs(mapFile string, args []string) (mapping.Map, error) {
	files := mapping.Map{}
	if mapFile != "" {
		var r *os.File
		var err error
		if mapFile == "-" {
			r = os.Stdin
		} else {
			r, err = os.Open(mapFile)
			if err != nil {
				return nil, apperr.IoError{Path: mapFile, Err: err}
			}
			defer r.Close()
		}
		m, err := mapping.ParseMappingFile(r, mapFile)
		if err != nil {
			return nil, err
		}
		files.Merge(m)
	}
	for _, arg := range args {
		if archiveName, localPath, ok := mapping.ParseArg(arg); ok {
			files[archiveName] = localPath
			continue
		}
		m, err := mapping.WalkDirectory(arg)
		if err != nil {
			return nil, err
		}
		files.Merge(m)
	}
	return files, nil
}

func resolveKeySource() (sign.KeySource, error) {
	switch {
	case certPath != "":
		return sign.PKCS12KeySource(certPath, ""), nil
	case modulePath != "":
		if slotID < 0 {
			return nil, fmt.Errorf("missing -s slot id for smartcard signing")
		}
		if keyID < 0 || keyID > 255 {
			return nil, fmt.Errorf("invalid -k key id for smartcard signing")
		}
		effectivePIN := pin
		if effectivePIN == "" {
			effectivePIN = os.Getenv("APPX_PIV_PIN")
		}
		if effectivePIN == "" {
			return nil, fmt.Errorf("no PIN provided for smartcard signing (-p or APPX_PIV_PIN)")
		}
		return sign.PKCS11KeySource(sign.PKCS11Options{ModulePath: modulePath, Slot: uint(slotID), KeyID: byte(keyID), PIN: effectivePIN}), nil
	default:
		return nil, nil
	}
}

func reportAndFail(w io.Writer, err error) error {
	fmt.Fprintln(w, "appxbuild:", err)
	return err
}
