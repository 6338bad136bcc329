// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

// Keysym identifies a key using X Window System keysym values, as carried by
// the RFB KeyEvent message (RFC 6143 Section 7.5.4). For the Latin-1 range the
// keysym equals the character code.
type Keysym uint32

// Modifier keysyms.
const (
	KeyShiftL   Keysym = 0xffe1
	KeyControlL Keysym = 0xffe3
)

// KeyStroke is the key that produces a character, plus the modifier that must
// be held while it is tapped. A zero Modifier means none.
type KeyStroke struct {
	Key      Keysym
	Modifier Keysym
}

// HasModifier reports whether the stroke must be bracketed by a modifier.
func (k KeyStroke) HasModifier() bool {
	return k.Modifier != 0
}

func plain(k Keysym) KeyStroke   { return KeyStroke{Key: k} }
func shifted(k Keysym) KeyStroke { return KeyStroke{Key: k, Modifier: KeyShiftL} }
func control(k Keysym) KeyStroke { return KeyStroke{Key: k, Modifier: KeyControlL} }

// keyTable maps ASCII to key strokes for a US layout. Shifted punctuation is
// typed as Shift plus the unshifted key that carries it. Control characters
// use caret notation, so newline is Ctrl+j. A zero entry has no mapping.
var keyTable = [128]KeyStroke{
	0x01: control('a'), 0x02: control('b'), 0x03: control('c'), 0x04: control('d'),
	0x05: control('e'), 0x06: control('f'), 0x07: control('g'), 0x08: control('h'),
	0x09: control('i'), 0x0a: control('j'), 0x0b: control('k'), 0x0c: control('l'),
	0x0d: control('m'), 0x0e: control('n'), 0x0f: control('o'), 0x10: control('p'),
	0x11: control('q'), 0x12: control('r'), 0x13: control('s'), 0x14: control('t'),
	0x15: control('u'), 0x16: control('v'), 0x17: control('w'), 0x18: control('x'),
	0x19: control('y'), 0x1a: control('z'), 0x1b: control('['), 0x1c: control('\\'),
	0x1d: control(']'),

	' ': plain(' '),

	'0': plain('0'), '1': plain('1'), '2': plain('2'), '3': plain('3'), '4': plain('4'),
	'5': plain('5'), '6': plain('6'), '7': plain('7'), '8': plain('8'), '9': plain('9'),

	'a': plain('a'), 'b': plain('b'), 'c': plain('c'), 'd': plain('d'), 'e': plain('e'),
	'f': plain('f'), 'g': plain('g'), 'h': plain('h'), 'i': plain('i'), 'j': plain('j'),
	'k': plain('k'), 'l': plain('l'), 'm': plain('m'), 'n': plain('n'), 'o': plain('o'),
	'p': plain('p'), 'q': plain('q'), 'r': plain('r'), 's': plain('s'), 't': plain('t'),
	'u': plain('u'), 'v': plain('v'), 'w': plain('w'), 'x': plain('x'), 'y': plain('y'),
	'z': plain('z'),

	'A': shifted('A'), 'B': shifted('B'), 'C': shifted('C'), 'D': shifted('D'), 'E': shifted('E'),
	'F': shifted('F'), 'G': shifted('G'), 'H': shifted('H'), 'I': shifted('I'), 'J': shifted('J'),
	'K': shifted('K'), 'L': shifted('L'), 'M': shifted('M'), 'N': shifted('N'), 'O': shifted('O'),
	'P': shifted('P'), 'Q': shifted('Q'), 'R': shifted('R'), 'S': shifted('S'), 'T': shifted('T'),
	'U': shifted('U'), 'V': shifted('V'), 'W': shifted('W'), 'X': shifted('X'), 'Y': shifted('Y'),
	'Z': shifted('Z'),

	'-': plain('-'), '=': plain('='), '[': plain('['), ']': plain(']'), '\\': plain('\\'),
	';': plain(';'), '\'': plain('\''), ',': plain(','), '.': plain('.'), '/': plain('/'),
	'`': plain('`'),

	'!': shifted('1'), '@': shifted('2'), '#': shifted('3'), '$': shifted('4'), '%': shifted('5'),
	'^': shifted('6'), '&': shifted('7'), '*': shifted('8'), '(': shifted('9'), ')': shifted('0'),
	'_': shifted('-'), '+': shifted('='), '{': shifted('['), '}': shifted(']'), '|': shifted('\\'),
	':': shifted(';'), '"': shifted('\''), '<': shifted(','), '>': shifted('.'), '?': shifted('/'),
	'~': shifted('`'),
}

// EncodeKey returns the key stroke that types r. Characters outside the table
// fail with ErrUnsupportedCharacter; the error wraps a *CharacterError.
// Control characters are sent as Ctrl plus their caret key, not as their raw
// ASCII code, so '\n' yields Ctrl+j rather than keysym 0x0a.
func EncodeKey(r rune) (KeyStroke, error) {
	if r < 0 || int(r) >= len(keyTable) {
		return KeyStroke{}, unsupportedCharacterError("EncodeKey", r)
	}
	stroke := keyTable[r]
	if stroke.Key == 0 {
		return KeyStroke{}, unsupportedCharacterError("EncodeKey", r)
	}
	return stroke, nil
}

// SupportedCharacters returns every character EncodeKey accepts, in code order.
func SupportedCharacters() []rune {
	chars := make([]rune, 0, len(keyTable))
	for i, stroke := range keyTable {
		if stroke.Key != 0 {
			chars = append(chars, rune(i))
		}
	}
	return chars
}
