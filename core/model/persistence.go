package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// EncodeGob は値をgobでio.Writerに書き出す
//
// 使用例:
//
//	var buf bytes.Buffer
//	err := model.EncodeGob(&buf, record)
func EncodeGob(w io.Writer, v interface{}) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode")
	}
	return nil
}

// DecodeGob はio.Readerからgobで値を読み込む。v はポインタでなければならない
func DecodeGob(r io.Reader, v interface{}) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode")
	}
	return nil
}
