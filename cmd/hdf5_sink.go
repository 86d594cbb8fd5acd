package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaviate/hdf5"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/source"
)

// Hdf5Sink stores every split as a rows x 784 dataset named after the split
// and its labels in a one dimensional "<split>_labels" dataset.
type Hdf5Sink[T any] struct {
	file  *hdf5.File
	dtype *hdf5.Datatype
}

// NewHdf5Sink truncates path. dtype must match the memory layout of T.
func NewHdf5Sink[T any](path string, dtype *hdf5.Datatype) (*Hdf5Sink[T], error) {
	file, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, errors.Wrapf(err, "create hdf5 file %s", path)
	}
	return &Hdf5Sink[T]{file: file, dtype: dtype}, nil
}

func (s *Hdf5Sink[T]) WriteSplit(split source.Split, examples []dataset.Example[T]) error {
	if len(examples) == 0 {
		log.WithField("split", split).Warn("No examples, skipping hdf5 datasets")
		return nil
	}

	dimensions := len(examples[0].Vector)
	vectors := make([]T, 0, len(examples)*dimensions)
	labels := make([]uint8, len(examples))
	for i, e := range examples {
		vectors = append(vectors, e.Vector...)
		labels[i] = uint8(e.Label)
	}

	log.WithFields(log.Fields{"rows": len(examples), "dimensions": dimensions}).Printf(
		"Writing HDF5 dataset %s", split)

	rows := uint(len(examples))
	if err := writeHdf5(s.file, split.String(), s.dtype, []uint{rows, uint(dimensions)}, &vectors); err != nil {
		return err
	}
	return writeHdf5(s.file, split.String()+"_labels", hdf5.T_NATIVE_UINT8, []uint{rows}, &labels)
}

func (s *Hdf5Sink[T]) Close() error {
	return s.file.Close()
}

func writeHdf5(file *hdf5.File, name string, dtype *hdf5.Datatype, dims []uint, data interface{}) error {
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return errors.Wrapf(err, "create dataspace for %s", name)
	}
	defer dataspace.Close()

	dset, err := file.CreateDataset(name, dtype, dataspace)
	if err != nil {
		return errors.Wrapf(err, "create dataset %s", name)
	}
	defer dset.Close()

	return errors.Wrapf(dset.Write(data), "write dataset %s", name)
}
