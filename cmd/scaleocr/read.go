package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/scaleocr-worker/internal/cascade"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
)

var (
	readMimeType   string
	readTessdata   string
	readLanguage   string
	readTimeout    time.Duration
	readSerialize  bool
	readJSONOutput bool
)

var readCmd = &cobra.Command{
	Use:   "read <image>",
	Short: "Extract the displayed number from an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the cascade strategies in the order they run",
	Run: func(cmd *cobra.Command, args []string) {
		for i, name := range cascade.NewExtractor(nil).Strategies() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
		}
	},
}

func init() {
	readCmd.Flags().StringVarP(&readMimeType, "mime", "m", "", "image MIME type (detected from content when empty)")
	readCmd.Flags().StringVar(&readTessdata, "tessdata", os.Getenv("TESSDATA_PREFIX"), "tessdata directory")
	readCmd.Flags().StringVarP(&readLanguage, "lang", "l", "eng", "Tesseract language")
	readCmd.Flags().DurationVarP(&readTimeout, "timeout", "t", ocr.DefaultTimeout, "timeout for a single engine call")
	readCmd.Flags().BoolVar(&readSerialize, "serialize", false, "allow only one engine call at a time")
	readCmd.Flags().BoolVar(&readJSONOutput, "json", false, "print the full result as JSON")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(strategiesCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	mimeType := readMimeType
	if mimeType == "" {
		mimeType = detectMimeType(args[0], data)
	}

	engine, err := ocr.NewTesseractEngine(&ocr.TesseractConfig{
		TessdataPrefix: readTessdata,
		Language:       readLanguage,
	})
	if err != nil {
		return fmt.Errorf("init tesseract: %w", err)
	}

	opts := []ocr.AdapterOption{ocr.WithTimeout(readTimeout)}
	if readSerialize {
		opts = append(opts, ocr.WithSerialization())
	}
	extractor := cascade.NewExtractor(
		ocr.NewAdapter(engine, opts...),
		cascade.WithLogger(logging.NewLogger("Cascade")),
	)

	result, err := extractor.Extract(context.Background(), cascade.RawImage{Data: data, MimeType: mimeType})
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), result, readJSONOutput)
}

func printResult(w io.Writer, result *cascade.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintf(w, "%s\t(strategy=%s attempts=%d)\n",
		result.Text, result.Strategy, result.Attempts)
	return err
}

// detectMimeType sniffs the content first and falls back to the extension
func detectMimeType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return sniffed
}
