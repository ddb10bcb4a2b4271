package romaji

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kana is the built-in Hepburn romanizer. It reads hiragana and katakana;
// kanji and anything else it cannot read pass through unchanged, so kanji
// input needs the model server engine.
type Kana struct{}

// NewKana returns the built-in engine. It holds no state and is safe for
// concurrent use.
func NewKana() *Kana {
	return &Kana{}
}

// Name implements Romanizer.
func (k *Kana) Name() string {
	return "builtin"
}

// Romanize implements Romanizer.
func (k *Kana) Romanize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Transliterate(text), nil
}

const (
	sokuon  = 'っ'
	hatsuon = 'ん'
	choonpu = 'ー'
)

var syllables = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "i", 'ゑ': "e", 'を': "o",
	'ゔ': "vu",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo", 'ゎ': "wa",
	'ゕ': "ka", 'ゖ': "ke",
	// Katakana-only letters with no hiragana counterpart.
	'ヷ': "va", 'ヸ': "vi", 'ヹ': "ve", 'ヺ': "vo",
}

// Two-kana spellings used mostly in loanwords.
var digraphs = map[string]string{
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo", "ふゅ": "fyu",
	"てぃ": "ti", "でぃ": "di", "てゅ": "tyu", "でゅ": "dyu",
	"とぅ": "tu", "どぅ": "du",
	"うぃ": "wi", "うぇ": "we", "うぉ": "wo",
	"ゔぁ": "va", "ゔぃ": "vi", "ゔぇ": "ve", "ゔぉ": "vo", "ゔゅ": "vyu",
	"しぇ": "she", "じぇ": "je", "ちぇ": "che",
	"つぁ": "tsa", "つぃ": "tsi", "つぇ": "tse", "つぉ": "tso",
	"いぇ": "ye",
	"くぁ": "kwa", "ぐぁ": "gwa",
}

var smallY = map[rune]byte{'ゃ': 'a', 'ゅ': 'u', 'ょ': 'o'}

var punctuation = map[rune]string{
	'。': ".",
	'、': ",",
	'「': "\"",
	'」': "\"",
	'『': "\"",
	'』': "\"",
	'・': " ",
	'〜': "~",
	'【': "[",
	'】': "]",
	'〈': "<",
	'〉': ">",
	'《': "<<",
	'》': ">>",
	'〔': "(",
	'〕': ")",
}

// Transliterate converts kana in text to modified Hepburn. The input is NFKC
// normalized first, which folds half-width katakana and full-width ASCII.
// Text without kana or Japanese punctuation is returned unchanged.
func Transliterate(text string) string {
	runes := []rune(toHiragana(norm.NFKC.String(text)))

	var b strings.Builder
	b.Grow(len(runes) * 2)

	for i := 0; i < len(runes); {
		switch r := runes[i]; r {
		case sokuon:
			// Double the next consonant; "ch" doubles as "tch".
			if next, _, ok := syllable(runes, i+1); ok && !isVowel(next[0]) {
				if strings.HasPrefix(next, "ch") {
					b.WriteByte('t')
				} else {
					b.WriteByte(next[0])
				}
			}
			i++

		case hatsuon:
			b.WriteByte('n')
			if next, _, ok := syllable(runes, i+1); ok && (isVowel(next[0]) || next[0] == 'y') {
				b.WriteByte('\'')
			}
			i++

		case choonpu:
			if v, ok := lastVowel(&b); ok {
				b.WriteByte(v)
			}
			i++

		default:
			if s, width, ok := syllable(runes, i); ok {
				b.WriteString(s)
				i += width
				continue
			}
			if p, ok := punctuation[r]; ok {
				b.WriteString(p)
			} else {
				b.WriteRune(r)
			}
			i++
		}
	}
	return b.String()
}

// syllable reads the kana unit starting at i and reports how many runes it
// consumed.
func syllable(runes []rune, i int) (string, int, bool) {
	if i >= len(runes) {
		return "", 0, false
	}
	if i+1 < len(runes) {
		if s, ok := digraphs[string(runes[i:i+2])]; ok {
			return s, 2, true
		}
		if vowel, ok := smallY[runes[i+1]]; ok {
			if base, ok := syllables[runes[i]]; ok && len(base) > 1 && strings.HasSuffix(base, "i") {
				return yoon(base, vowel), 2, true
			}
		}
	}
	s, ok := syllables[runes[i]]
	return s, 1, ok
}

// yoon merges an i-column syllable with a small ya/yu/yo.
func yoon(base string, vowel byte) string {
	stem := base[:len(base)-1]
	switch stem {
	case "sh", "ch", "j":
		return stem + string(vowel)
	}
	return stem + "y" + string(vowel)
}

func lastVowel(b *strings.Builder) (byte, bool) {
	s := b.String()
	if s == "" {
		return 0, false
	}
	c := s[len(s)-1]
	return c, isVowel(c)
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'i', 'u', 'e', 'o':
		return true
	}
	return false
}

// toHiragana folds katakana onto hiragana so one table serves both scripts.
func toHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - ('ァ' - 'ぁ')
		}
		return r
	}, s)
}
