// Package simhash flags adjacent chunk transcripts that are near-duplicates,
// the usual sign of whisper looping over a chunk boundary.
package simhash

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
)

// DefaultThreshold 汉明距离 <= 6 视为重复
const DefaultThreshold = 6

// MinWords 少于该词数的文本不参与比较，短句重复（"Thank you."）很常见
const MinWords = 4

// TranscriptFeatureSet 实现 simhash.FeatureSet 接口
// 使用词级 unigram + bigram 特征
type TranscriptFeatureSet struct {
	words []string
}

// GetFeatures 提取文本特征
func (t TranscriptFeatureSet) GetFeatures() []simhash.Feature {
	features := make([]simhash.Feature, 0, len(t.words)*2)
	for i, w := range t.words {
		features = append(features, simhash.NewFeature([]byte(w)))
		if i > 0 {
			features = append(features, simhash.NewFeature([]byte(t.words[i-1]+" "+w)))
		}
	}
	return features
}

// words 按非字母数字切分并转小写
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// CalculateSimHash 计算文本的 SimHash 指纹
func CalculateSimHash(text string) uint64 {
	return simhash.NewSimhash().GetSimhash(TranscriptFeatureSet{words: words(text)})
}

// HammingDistance 计算两个指纹不同位的数量（0-64）
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// IsSimilar 判断两段文本是否近似重复
func IsSimilar(text1, text2 string, threshold int) bool {
	return HammingDistance(CalculateSimHash(text1), CalculateSimHash(text2)) <= threshold
}

// FindRepeats returns the indices i (ascending) whose text is a near-duplicate
// of texts[i-1]. Texts shorter than MinWords never match. A threshold <= 0
// uses DefaultThreshold.
func FindRepeats(texts []string, threshold int) []int {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	hashes := make([]uint64, len(texts))
	eligible := make([]bool, len(texts))
	for i, text := range texts {
		w := words(text)
		if len(w) < MinWords {
			continue
		}
		eligible[i] = true
		hashes[i] = simhash.NewSimhash().GetSimhash(TranscriptFeatureSet{words: w})
	}

	var repeats []int
	for i := 1; i < len(texts); i++ {
		if eligible[i] && eligible[i-1] && HammingDistance(hashes[i-1], hashes[i]) <= threshold {
			repeats = append(repeats, i)
		}
	}
	return repeats
}
