package retrieval

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter 统计文本 token 数，供上下文组装的预算控制使用
type TokenCounter interface {
	CountTokens(text string) int
}

// 模型名到 tiktoken 编码的映射，未知模型回落 cl100k_base
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4-turbo":            "cl100k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
}

// TiktokenCounter 基于 tiktoken 的 token 计数。编码数据在首次使用时
// 惰性加载；加载失败时回退到 len(text)/4 估算并记录警告。
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	logger   *zap.Logger
}

// NewTiktokenCounter 按模型名创建计数器
func NewTiktokenCounter(model string, logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		for prefix, e := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = e
				ok = true
				break
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding, logger: logger}
}

func (t *TiktokenCounter) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
}

// CountTokens 返回文本 token 数，编码不可用时按 len/4 估算
func (t *TiktokenCounter) CountTokens(text string) int {
	t.init()
	if t.initErr != nil {
		t.logger.Warn("tiktoken unavailable, falling back to estimate",
			zap.String("encoding", t.encoding),
			zap.Error(t.initErr))
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateCounter 按 len/4 估算的计数器，无外部编码数据依赖
type EstimateCounter struct{}

// CountTokens 粗略估算 token 数
func (EstimateCounter) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
