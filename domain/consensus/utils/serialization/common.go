package serialization

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
)

var errNoEncodingForType = errors.New("there is no encoding for this type")

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	// Attempt to write the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case int32:
		err := WriteElement(w, uint32(e))
		if err != nil {
			return err
		}
		return nil
	case uint32:
		var scratch [4]byte
		binary.LittleEndian.PutUint32(scratch[:], e)
		_, err := w.Write(scratch[:])
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case int64:
		err := WriteElement(w, uint64(e))
		if err != nil {
			return err
		}
		return nil
	case uint64:
		var scratch [8]byte
		binary.LittleEndian.PutUint64(scratch[:], e)
		_, err := w.Write(scratch[:])
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case uint16:
		var scratch [2]byte
		binary.LittleEndian.PutUint16(scratch[:], e)
		_, err := w.Write(scratch[:])
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case uint8:
		_, err := w.Write([]byte{e})
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case bool:
		var b byte
		if e {
			b = 1
		}
		_, err := w.Write([]byte{b})
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case *externalapi.DomainHash:
		_, err := w.Write(e.ByteSlice())
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case *externalapi.DomainTransactionID:
		_, err := w.Write(e.ByteSlice())
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	case externalapi.DomainTransactionID:
		_, err := w.Write(e.ByteSlice())
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	}

	return errors.Wrapf(errNoEncodingForType, "couldn't serialize %T type", element)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteVarBytes writes the length of the given bytes as a little endian
// uint64 followed by the bytes themselves.
func WriteVarBytes(w io.Writer, data []byte) error {
	err := WriteElement(w, uint64(len(data)))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
