// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// CLI から返るエラーはすべてここで定義された型のいずれかに分類され、終了コードに対応付けられます。
package errors

import (
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("petalnet-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DatasetWarning はデータセットの構成に問題があるが処理を継続できる場合の警告です。
// 例えば、クラスフォルダが空の場合や、読み込めない画像が含まれる場合など。
type DatasetWarning struct {
	Split  string
	Class  string
	Reason string
}

func (w *DatasetWarning) Error() string {
	if w.Class != "" {
		return fmt.Sprintf("dataset %s: class %q: %s", w.Split, w.Class, w.Reason)
	}
	return fmt.Sprintf("dataset %s: %s", w.Split, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DatasetWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("split", w.Split).
		Str("class", w.Class).
		Str("reason", w.Reason).
		Str("type", "DatasetWarning")
}

// NewDatasetWarning は新しいDatasetWarningを作成します。
func NewDatasetWarning(split, class, reason string) *DatasetWarning {
	return &DatasetWarning{Split: split, Class: class, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ConfigError は CLI 引数や設定値の検証に失敗した場合のエラーです。
// 未知のアーキテクチャ名や範囲外の top_k などが該当します。
type ConfigError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("petalnet: invalid configuration for '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigError")
}

// NewConfigError は新しいConfigErrorを作成し、スタックトレースを付与します。
func NewConfigError(param, reason string, value interface{}) error {
	err := &ConfigError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// SchemaError はチェックポイントやサイドファイルの構造が不正な場合のエラーです。
// 必須フィールドの欠落、マジックバイトの不一致、壊れたペイロードなどを示します。
type SchemaError struct {
	Source  string   // "checkpoint", "category_names" など
	Missing []string // 欠落している必須フィールド
	Reason  string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("petalnet: %s: missing required fields: %s", e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("petalnet: %s: %s", e.Source, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Strs("missing", e.Missing).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(source, reason string) error {
	return errors.WithStack(&SchemaError{Source: source, Reason: reason})
}

// NewMissingFieldsError は必須フィールド欠落を示すSchemaErrorを作成します。
func NewMissingFieldsError(source string, missing []string) error {
	return errors.WithStack(&SchemaError{Source: source, Missing: missing, Reason: "missing required fields"})
}

// ShapeMismatchError は重みテンソルの形状が宣言されたサイズと一致しない場合のエラーです。
// Got が nil の場合、そのテンソル自体が存在しないことを示します。
type ShapeMismatchError struct {
	Layer    string
	Expected []int
	Got      []int
}

func (e *ShapeMismatchError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("petalnet: shape mismatch for %s: expected %v, tensor is missing", e.Layer, e.Expected)
	}
	if e.Expected == nil {
		return fmt.Sprintf("petalnet: shape mismatch for %s: unexpected tensor with shape %v", e.Layer, e.Got)
	}
	return fmt.Sprintf("petalnet: shape mismatch for %s: expected %v, got %v", e.Layer, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ShapeMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("layer", e.Layer).
		Ints("expected", e.Expected).
		Ints("got", e.Got).
		Str("type", "ShapeMismatchError")
}

// NewShapeMismatchError は新しいShapeMismatchErrorを作成し、スタックトレースを付与します。
func NewShapeMismatchError(layer string, expected, got []int) error {
	return errors.WithStack(&ShapeMismatchError{Layer: layer, Expected: expected, Got: got})
}

// LookupError は予測されたクラスインデックスやラベルに対応するエントリが存在しない場合のエラーです。
type LookupError struct {
	Table string // "class_to_index" または "category_names"
	Key   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("petalnet: no entry for %q in %s", e.Key, e.Table)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *LookupError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("table", e.Table).
		Str("key", e.Key).
		Str("type", "LookupError")
}

// NewLookupError は新しいLookupErrorを作成し、スタックトレースを付与します。
func NewLookupError(table, key string) error {
	return errors.WithStack(&LookupError{Table: table, Key: key})
}

// IOError は画像・チェックポイント・カテゴリファイルの読み書きに失敗した場合のエラーです。
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if cause := e.cause(); cause != nil {
		return fmt.Sprintf("petalnet: %s %s: %v", e.Op, e.Path, cause)
	}
	return fmt.Sprintf("petalnet: %s %s", e.Op, e.Path)
}

// cause は同じパスを持つ *fs.PathError を剥がし、パスの二重表示を避けます。
func (e *IOError) cause() error {
	var pathErr *fs.PathError
	if errors.As(e.Err, &pathErr) && pathErr.Path == e.Path {
		return pathErr.Err
	}
	return e.Err
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *IOError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("op", e.Op).
		Str("path", e.Path).
		Str("type", "IOError")
	if cause := e.cause(); cause != nil {
		event.Str("cause", cause.Error())
	}
}

// NewIOError は新しいIOErrorを作成し、スタックトレースを付与します。
func NewIOError(op, path string, err error) error {
	return errors.WithStack(&IOError{Op: op, Path: path, Err: err})
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// 学習中の損失が NaN や Inf になった場合に検出されます。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "nll_loss", "adam_step"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("petalnet: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	終了コード
//
// ===========================================================================

// 終了コード。CLI はこれ以外の値を返しません。
const (
	ExitOK         = 0
	ExitUnexpected = 1
	ExitConfig     = 2
	ExitIO         = 3
	ExitSchema     = 4
	ExitLookup     = 5
)

// ExitCode はエラーの種類に対応する終了コードを返します。
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		cfgErr    *ConfigError
		ioErr     *IOError
		schemaErr *SchemaError
		shapeErr  *ShapeMismatchError
		lookupErr *LookupError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &ioErr):
		return ExitIO
	case errors.As(err, &schemaErr), errors.As(err, &shapeErr):
		return ExitSchema
	case errors.As(err, &lookupErr):
		return ExitLookup
	default:
		return ExitUnexpected
	}
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNotTrained は学習前のヘッドを保存しようとした場合のエラーです。
	ErrNotTrained = New("head has not been trained")
)
