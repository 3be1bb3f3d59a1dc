// Package script writes short-video scripts with a text provider.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ineyio/vidquota"
)

// Request defaults and fallbacks.
const (
	DefaultStyle    = "口语化"
	DefaultDuration = "30秒"

	// DefaultCorpusHint is used whenever no scene corpus is available.
	DefaultCorpusHint = "口语化表达，情绪饱满"

	defaultShotCount = 5
	defaultStyleHint = "语言口语化，有感染力，适合短视频拍摄"

	createTimeLayout = "2006-01-02 15:04:05"
)

var shotCounts = map[string]int{
	"15秒": 3,
	"30秒": 6,
	"60秒": 12,
}

var styleHints = map[string]string{
	"口语化": "语言极度口语化，像和朋友聊天，多用网络热词、语气词（比如：哇、绝了、家人们），节奏快",
	"专业化": "语言专业、严谨，突出产品卖点和数据，适合品牌官方账号，避免口语化表达",
	"搞笑风": "台词幽默搞笑，镜头有反差感、夸张动作，多用梗和段子，让用户笑出声",
	"煽情风": "语言温暖、有感染力，能触动情绪，镜头慢节奏，背景音乐舒缓，适合情感类内容",
}

// ShotCount returns the number of shots for a duration label.
func ShotCount(duration string) int {
	if n, ok := shotCounts[duration]; ok {
		return n
	}
	return defaultShotCount
}

// StyleHint returns the prompt hint for a style label.
func StyleHint(style string) string {
	if h, ok := styleHints[style]; ok {
		return h
	}
	return defaultStyleHint
}

// Request is a script-writing request.
type Request struct {
	UserID   string `json:"user_id" validate:"required"`
	Scene    string `json:"scene" validate:"required"`
	KeyInfo  string `json:"key_info" validate:"required"`
	Style    string `json:"style"`
	Duration string `json:"duration"`
}

// Result is a written script.
type Result struct {
	ScriptID   string   `json:"script_id"`
	Style      string   `json:"style"`
	Duration   string   `json:"duration"`
	Schemes    []string `json:"schemes"`
	CreateTime string   `json:"create_time"`
}

// Writer turns a scene and key message into a shot-by-shot script.
type Writer struct {
	text      vidquota.TextProvider
	cache     CorpusCache
	clock     vidquota.Clock
	useCorpus bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithCorpusCache sets the scene corpus cache (default a new MemoryCorpusCache).
func WithCorpusCache(c CorpusCache) Option {
	return func(w *Writer) { w.cache = c }
}

// WithClock sets the clock used for create_time.
func WithClock(c vidquota.Clock) Option {
	return func(w *Writer) { w.clock = c }
}

// WithSceneCorpus makes Write ground the prompt on a generated scene corpus
// instead of DefaultCorpusHint. It costs one extra text call per new scene.
func WithSceneCorpus() Option {
	return func(w *Writer) { w.useCorpus = true }
}

// NewWriter creates a Writer backed by text.
func NewWriter(text vidquota.TextProvider, opts ...Option) *Writer {
	w := &Writer{text: text}
	for _, opt := range opts {
		opt(w)
	}
	if w.cache == nil {
		w.cache = NewMemoryCorpusCache()
	}
	if w.clock == nil {
		w.clock = vidquota.SystemClock{}
	}
	return w
}

// Corpus returns the vocabulary corpus for scene. Provider failures and
// empty answers fall back to DefaultCorpusHint, which is never cached.
func (w *Writer) Corpus(ctx context.Context, scene string) string {
	if c, ok := w.cache.Get(scene); ok {
		return c
	}

	content, err := w.text.Generate(ctx, corpusPrompt(scene))
	content = strings.TrimSpace(content)
	if err != nil || content == "" {
		return DefaultCorpusHint
	}

	w.cache.Set(scene, content)
	return content
}

// Write generates one script scheme for req.
func (w *Writer) Write(ctx context.Context, req Request) (Result, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Scene = strings.TrimSpace(req.Scene)
	req.KeyInfo = strings.TrimSpace(req.KeyInfo)
	if req.UserID == "" || req.Scene == "" || req.KeyInfo == "" {
		return Result{}, fmt.Errorf("%w: user_id, scene and key_info are required", vidquota.ErrInvalidRequest)
	}
	if req.Style == "" {
		req.Style = DefaultStyle
	}
	if req.Duration == "" {
		req.Duration = DefaultDuration
	}

	corpus := DefaultCorpusHint
	if w.useCorpus {
		corpus = w.Corpus(ctx, req.Scene)
	}

	content, err := w.text.Generate(ctx, scriptPrompt(req, corpus))
	if err != nil {
		return Result{}, err
	}

	return Result{
		ScriptID:   newScriptID(),
		Style:      req.Style,
		Duration:   req.Duration,
		Schemes:    []string{content},
		CreateTime: w.clock.Now().Format(createTimeLayout),
	}, nil
}

func newScriptID() string {
	id := uuid.New()
	return "script_" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

func corpusPrompt(scene string) string {
	return fmt.Sprintf(`请为%s创作场景生成一份专业的语料库，包含以下内容：
1. 该场景常用的爆款词汇和表达（10-15个）
2. 该场景常用的句式和开场白（5-8个）
3. 该场景的情绪调动技巧和互动话术（5-8个）
4. 该场景的行业术语和常用说法

请直接输出内容，不要任何多余的格式。`, scene)
}

func scriptPrompt(req Request, corpus string) string {
	shots := ShotCount(req.Duration)

	var b strings.Builder
	fmt.Fprintf(&b, "你是专业的%s短视频脚本创作师，请生成1种高质量的%s短视频文案方案。\n", req.Scene, req.Duration)
	b.WriteString("严格遵守以下所有规则，一条都不能违反：\n\n")
	fmt.Fprintf(&b, "1. 必须包含核心信息：%s\n", req.KeyInfo)
	fmt.Fprintf(&b, "2. 参考该场景的专业语料库：%s\n", corpus)
	fmt.Fprintf(&b, "3. 时长要求：严格控制在%s，镜头数量为%d个，每个镜头台词长度匹配时长,字数尽量多\n", req.Duration, shots)
	b.WriteString("4. 严禁使用广告违禁词：最、第一、顶级、绝对、全网第一、永久等。\n")
	b.WriteString("5. 输出格式：\n\n")
	b.WriteString("标题: 这里写视频标题，一定要足够吸睛\n")
	for i := 1; i <= shots; i++ {
		fmt.Fprintf(&b, "镜头%d: 镜头内容描述\n台词%d: 台词内容（必须是博主说的话，不能空）\n\n", i, i)
	}
	b.WriteString("配乐建议: 统一的背景音乐风格描述（整个视频使用同一首音乐）\n\n")
	b.WriteString("要求：\n")
	fmt.Fprintf(&b, "- 使用%s风格\n", StyleHint(req.Style))
	b.WriteString("- 镜头、台词的编号必须一一对应\n")
	b.WriteString("- 每一行只写一项，不要把多个内容写在同一行\n")
	b.WriteString("- 不要任何多余格式、表格、横线、星号、加粗符号\n")
	b.WriteString("- 台词必须是口语化的句子，不能省略\n")
	b.WriteString("- 配乐建议只在方案的最后统一输出一次\n")
	b.WriteString("- 充分利用参考语料库中的爆款词汇和表达，让文案更符合该场景的特点\n")
	b.WriteString("- 确保文案质量高，有吸引力，能够有效传达核心信息\n")
	return b.String()
}
