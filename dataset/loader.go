package dataset

import (
	"context"
	"image"
	"math/rand/v2"

	"github.com/YuminosukeSato/petalnet/core/parallel"
	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/preprocessing"
)

// DefaultBatchSize は1バッチあたりのサンプル数のデフォルト値
const DefaultBatchSize = 64

// Batch は前処理済みのミニバッチ
type Batch struct {
	// Images は [N, 3, H, W] のテンソル
	Images *tensor.Tensor
	Labels []int
	Paths  []string
}

// Size はバッチ内のサンプル数を返す
func (b *Batch) Size() int { return len(b.Labels) }

// Loader はFolderをミニバッチに分割して前処理する
type Loader struct {
	folder    *Folder
	pipeline  *preprocessing.Pipeline
	batchSize int
	shuffle   bool
	seed      uint64
	open      func(path string) (image.Image, error)
}

// LoaderOption はLoaderの設定オプション
type LoaderOption func(*Loader)

// WithBatchSize はバッチサイズを設定する
func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) { l.batchSize = n }
}

// WithShuffle はエポックごとのシャッフルを有効にする
func WithShuffle(shuffle bool) LoaderOption {
	return func(l *Loader) { l.shuffle = shuffle }
}

// WithSeed はシャッフルとデータ拡張の乱数シードを設定する
func WithSeed(seed uint64) LoaderOption {
	return func(l *Loader) { l.seed = seed }
}

// WithImageOpener は画像の読み込み関数を差し替える
func WithImageOpener(open func(path string) (image.Image, error)) LoaderOption {
	return func(l *Loader) { l.open = open }
}

// NewLoader は新しいLoaderを作成する
func NewLoader(folder *Folder, pipeline *preprocessing.Pipeline, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		folder:    folder,
		pipeline:  pipeline,
		batchSize: DefaultBatchSize,
		open:      preprocessing.LoadImage,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.batchSize <= 0 {
		return nil, errors.NewConfigError("batch_size", "must be positive", l.batchSize)
	}
	return l, nil
}

// NumBatches はエポックあたりのバッチ数を返す
func (l *Loader) NumBatches() int {
	return (l.folder.Len() + l.batchSize - 1) / l.batchSize
}

// NumSamples はサンプル数を返す
func (l *Loader) NumSamples() int { return l.folder.Len() }

// Order はエポックのサンプル順序を返す。シャッフル無効時は恒等順序
func (l *Loader) Order(epoch int) []int {
	order := make([]int, l.folder.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewPCG(l.seed, uint64(epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

// Each はエポックの全バッチに対してfnを順に呼び出す。
// ctxのキャンセルはバッチの間でのみ確認する
func (l *Loader) Each(ctx context.Context, epoch int, fn func(b *Batch) error) error {
	order := l.Order(epoch)
	for start := 0; start < len(order); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+l.batchSize, len(order))
		b, err := l.load(ctx, epoch, order[start:end])
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// load はサンプルを並列にデコード・前処理してバッチにまとめる
func (l *Loader) load(ctx context.Context, epoch int, idx []int) (*Batch, error) {
	images := make([]*tensor.Tensor, len(idx))
	b := &Batch{Labels: make([]int, len(idx)), Paths: make([]string, len(idx))}

	err := parallel.ForEach(ctx, len(idx), func(i int) error {
		s := l.folder.Samples[idx[i]]
		// 壊れた画像でデコーダがpanicしてもワーカーごと落とさずエラーにする
		return errors.SafeExecute("dataset.load "+s.Path, func() error {
			img, err := l.open(s.Path)
			if err != nil {
				return err
			}
			// サンプル単位の乱数で、並列度に関係なく結果を決定的にする
			rng := rand.New(rand.NewPCG(l.seed^uint64(epoch+1)<<32, uint64(idx[i])))
			t, err := l.pipeline.Apply(img, rng)
			if err != nil {
				return errors.Wrapf(err, "preprocessing %s", s.Path)
			}
			images[i] = t
			b.Labels[i] = s.Label
			b.Paths[i] = s.Path
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if b.Images, err = tensor.Stack(images); err != nil {
		return nil, err
	}
	return b, nil
}
