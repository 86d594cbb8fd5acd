package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print one binarized image",
	Long:  `Print the binarized image at a position of the train or test split together with its label`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "render"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		loader, _ := newLoader(&cfg)
		split, _ := parseSplit(cfg.Split)

		example, err := exampleAt(context.Background(), loader, split, cfg.Index)
		if err != nil {
			fatal(err)
		}

		if _, err := writeImage(os.Stdout, example); err != nil {
			fatal(err)
		}
	},
}

func initRender() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.PersistentFlags().StringVarP(&globalConfig.Split,
		"split", "s", "train", "Split to read from, one of [train, test]")
	renderCmd.PersistentFlags().IntVarP(&globalConfig.Index,
		"index", "i", 0, "Position of the image in the split")
}

func exampleAt(ctx context.Context, loader *dataset.Loader, split source.Split, i int) (dataset.Example[int], error) {
	examples, err := dataset.Examples(ctx, loader, split, vector.Binary, i+1)
	if err != nil {
		return dataset.Example[int]{}, err
	}

	n := 0
	for e := range examples {
		if n == i {
			return e, nil
		}
		n++
	}
	return dataset.Example[int]{}, errors.Errorf("%s split has %d examples, no index %d", split, n, i)
}

func writeImage(w io.Writer, e dataset.Example[int]) (int, error) {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("Label: %d\n", e.Label))
	for row := 0; row < idx.ImageHeight; row++ {
		for col := 0; col < idx.ImageWidth; col++ {
			if e.Vector[row*idx.ImageWidth+col] == 1 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return w.Write([]byte(b.String()))
}
