package types

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned by the Read* helpers when the stream ends
// before the expected field is complete.
var ErrTruncated = errors.New("types: truncated serialized data")

// WriteUint8 and its Read counterpart are the length-prefixed binary
// style's smallest field: a single tag byte, used for OutputType.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapTruncated(err)
	}
	return buf[0], nil
}

// WriteBool and ReadBool encode a bool as a single byte.
func WriteBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	return WriteUint8(w, b)
}

func ReadBool(r io.Reader) (bool, error) {
	b, err := ReadUint8(r)
	return b != 0, err
}

// WriteUint32 and ReadUint32 are big-endian fixed-width fields, matching
// the bucket-key convention already used for on-disk height ordering.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapTruncated(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 and ReadUint64 are the 8-byte counterpart of WriteUint32.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapTruncated(err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBytes and ReadBytes are the length-prefixed-sequence idiom applied
// to a raw byte slice: a uint32 count followed by that many bytes.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, wrapTruncated(err)
	}
	return b, nil
}

func WriteHash(w io.Writer, h Hash) error {
	_, err := w.Write(h[:])
	return err
}

func ReadHash(r io.Reader) (Hash, error) {
	var h Hash
	_, err := io.ReadFull(r, h[:])
	return h, wrapTruncated(err)
}

func WritePublicKey(w io.Writer, k PublicKey) error {
	_, err := w.Write(k[:])
	return err
}

func ReadPublicKey(r io.Reader) (PublicKey, error) {
	var k PublicKey
	_, err := io.ReadFull(r, k[:])
	return k, wrapTruncated(err)
}

func WriteKeyImage(w io.Writer, k KeyImage) error {
	_, err := w.Write(k[:])
	return err
}

func ReadKeyImage(r io.Reader) (KeyImage, error) {
	var k KeyImage
	_, err := io.ReadFull(r, k[:])
	return k, wrapTruncated(err)
}

func wrapTruncated(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}

// WriteTransactionInformation and ReadTransactionInformation serialize a
// TransactionInformation in declaration order.
func WriteTransactionInformation(w io.Writer, info TransactionInformation) error {
	if err := WriteHash(w, info.TransactionHash); err != nil {
		return err
	}
	if err := WriteUint32(w, info.BlockHeight); err != nil {
		return err
	}
	if err := WriteUint64(w, info.Timestamp); err != nil {
		return err
	}
	if err := WriteUint64(w, info.UnlockTime); err != nil {
		return err
	}
	if err := WritePublicKey(w, info.PublicKey); err != nil {
		return err
	}
	if err := WriteHash(w, info.PaymentID); err != nil {
		return err
	}
	if err := WriteUint64(w, info.AmountIn); err != nil {
		return err
	}
	if err := WriteUint64(w, info.AmountOut); err != nil {
		return err
	}
	return WriteBytes(w, info.Extra)
}

func ReadTransactionInformation(r io.Reader) (TransactionInformation, error) {
	var info TransactionInformation
	var err error
	if info.TransactionHash, err = ReadHash(r); err != nil {
		return info, err
	}
	if info.BlockHeight, err = ReadUint32(r); err != nil {
		return info, err
	}
	if info.Timestamp, err = ReadUint64(r); err != nil {
		return info, err
	}
	if info.UnlockTime, err = ReadUint64(r); err != nil {
		return info, err
	}
	if info.PublicKey, err = ReadPublicKey(r); err != nil {
		return info, err
	}
	if info.PaymentID, err = ReadHash(r); err != nil {
		return info, err
	}
	if info.AmountIn, err = ReadUint64(r); err != nil {
		return info, err
	}
	if info.AmountOut, err = ReadUint64(r); err != nil {
		return info, err
	}
	if info.Extra, err = ReadBytes(r); err != nil {
		return info, err
	}
	return info, nil
}

// WriteTransactionOutputInformation and ReadTransactionOutputInformation
// follow TransactionOutputInformationEx::serialize's field order: the type
// tag first (so the reader knows whether an output key or a required
// signature count follows), then the fields common to both output types.
func WriteTransactionOutputInformation(w io.Writer, o TransactionOutputInformation) error {
	if err := WriteUint8(w, uint8(o.Type)); err != nil {
		return err
	}
	if err := WriteUint64(w, o.Amount); err != nil {
		return err
	}
	if err := WriteUint32(w, o.GlobalOutputIndex); err != nil {
		return err
	}
	if err := WriteUint32(w, o.OutputInTransaction); err != nil {
		return err
	}
	if err := WriteHash(w, o.TransactionHash); err != nil {
		return err
	}
	if err := WritePublicKey(w, o.TransactionPublicKey); err != nil {
		return err
	}
	if err := WriteKeyImage(w, o.KeyImage); err != nil {
		return err
	}
	if err := WriteUint64(w, o.UnlockTime); err != nil {
		return err
	}
	if o.Type == OutputTypeKey {
		return WritePublicKey(w, o.OutputKey)
	}
	return WriteUint32(w, o.RequiredSignatures)
}

func ReadTransactionOutputInformation(r io.Reader) (TransactionOutputInformation, error) {
	var o TransactionOutputInformation
	var err error
	var t uint8
	if t, err = ReadUint8(r); err != nil {
		return o, err
	}
	o.Type = OutputType(t)
	if o.Amount, err = ReadUint64(r); err != nil {
		return o, err
	}
	if o.GlobalOutputIndex, err = ReadUint32(r); err != nil {
		return o, err
	}
	if o.OutputInTransaction, err = ReadUint32(r); err != nil {
		return o, err
	}
	if o.TransactionHash, err = ReadHash(r); err != nil {
		return o, err
	}
	if o.TransactionPublicKey, err = ReadPublicKey(r); err != nil {
		return o, err
	}
	if o.KeyImage, err = ReadKeyImage(r); err != nil {
		return o, err
	}
	if o.UnlockTime, err = ReadUint64(r); err != nil {
		return o, err
	}
	if o.Type == OutputTypeKey {
		if o.OutputKey, err = ReadPublicKey(r); err != nil {
			return o, err
		}
	} else if o.RequiredSignatures, err = ReadUint32(r); err != nil {
		return o, err
	}
	return o, nil
}

// WriteSpentOutputDescriptor and ReadSpentOutputDescriptor serialize a
// SpentOutputDescriptor in declaration order; both fields are always
// written regardless of type, since only one is ever meaningful and the
// fixed layout keeps the format simple.
func WriteSpentOutputDescriptor(w io.Writer, d SpentOutputDescriptor) error {
	if err := WriteUint8(w, uint8(d.Type)); err != nil {
		return err
	}
	if err := WriteKeyImage(w, d.KeyImage); err != nil {
		return err
	}
	if err := WriteUint64(w, d.Amount); err != nil {
		return err
	}
	return WriteUint32(w, d.GlobalOutputIndex)
}

func ReadSpentOutputDescriptor(r io.Reader) (SpentOutputDescriptor, error) {
	var d SpentOutputDescriptor
	var err error
	var t uint8
	if t, err = ReadUint8(r); err != nil {
		return d, err
	}
	d.Type = OutputType(t)
	if d.KeyImage, err = ReadKeyImage(r); err != nil {
		return d, err
	}
	if d.Amount, err = ReadUint64(r); err != nil {
		return d, err
	}
	if d.GlobalOutputIndex, err = ReadUint32(r); err != nil {
		return d, err
	}
	return d, nil
}
