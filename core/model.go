package core

// Mode はモジュールの動作モードを表す
type Mode int

const (
	// Evaluation は推論モード。dropout は無効
	Evaluation Mode = iota
	// Training は学習モード。dropout が有効になる
	Training
)

func (m Mode) String() string {
	if m == Training {
		return "train"
	}
	return "eval"
}

// ModeSwitcher は学習モードと推論モードを切り替えられるモジュールのインターフェース
type ModeSwitcher interface {
	// Train は学習モードに切り替える
	Train()
	// Eval は推論モードに切り替える
	Eval()
	// Mode は現在のモードを返す
	Mode() Mode
}

// BaseModule はモード管理を提供する埋め込み用の構造体
// ゼロ値は推論モード
type BaseModule struct {
	mode Mode
}

// Train は学習モードに切り替える
func (b *BaseModule) Train() {
	b.mode = Training
}

// Eval は推論モードに切り替える
func (b *BaseModule) Eval() {
	b.mode = Evaluation
}

// Mode は現在のモードを返す
func (b *BaseModule) Mode() Mode {
	return b.mode
}

// IsTraining は学習モードかどうかを返す
func (b *BaseModule) IsTraining() bool {
	return b.mode == Training
}
