package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// KeybdKey identifies a physical keyboard key. The set is closed: decoding an
// identifier outside it fails.
type KeybdKey string

const (
	KeyBackspace      KeybdKey = "BackspaceKey"
	KeyTab            KeybdKey = "TabKey"
	KeyEnter          KeybdKey = "EnterKey"
	KeyEscape         KeybdKey = "EscapeKey"
	KeySpace          KeybdKey = "SpaceKey"
	KeyPageUp         KeybdKey = "PageUpKey"
	KeyPageDown       KeybdKey = "PageDownKey"
	KeyEnd            KeybdKey = "EndKey"
	KeyHome           KeybdKey = "HomeKey"
	KeyLeft           KeybdKey = "LeftKey"
	KeyUp             KeybdKey = "UpKey"
	KeyRight          KeybdKey = "RightKey"
	KeyDown           KeybdKey = "DownKey"
	KeyInsert         KeybdKey = "InsertKey"
	KeyDelete         KeybdKey = "DeleteKey"
	KeyNumrow0        KeybdKey = "Numrow0Key"
	KeyNumrow1        KeybdKey = "Numrow1Key"
	KeyNumrow2        KeybdKey = "Numrow2Key"
	KeyNumrow3        KeybdKey = "Numrow3Key"
	KeyNumrow4        KeybdKey = "Numrow4Key"
	KeyNumrow5        KeybdKey = "Numrow5Key"
	KeyNumrow6        KeybdKey = "Numrow6Key"
	KeyNumrow7        KeybdKey = "Numrow7Key"
	KeyNumrow8        KeybdKey = "Numrow8Key"
	KeyNumrow9        KeybdKey = "Numrow9Key"
	KeyA              KeybdKey = "AKey"
	KeyB              KeybdKey = "BKey"
	KeyC              KeybdKey = "CKey"
	KeyD              KeybdKey = "DKey"
	KeyE              KeybdKey = "EKey"
	KeyF              KeybdKey = "FKey"
	KeyG              KeybdKey = "GKey"
	KeyH              KeybdKey = "HKey"
	KeyI              KeybdKey = "IKey"
	KeyJ              KeybdKey = "JKey"
	KeyK              KeybdKey = "KKey"
	KeyL              KeybdKey = "LKey"
	KeyM              KeybdKey = "MKey"
	KeyN              KeybdKey = "NKey"
	KeyO              KeybdKey = "OKey"
	KeyP              KeybdKey = "PKey"
	KeyQ              KeybdKey = "QKey"
	KeyR              KeybdKey = "RKey"
	KeyS              KeybdKey = "SKey"
	KeyT              KeybdKey = "TKey"
	KeyU              KeybdKey = "UKey"
	KeyV              KeybdKey = "VKey"
	KeyW              KeybdKey = "WKey"
	KeyX              KeybdKey = "XKey"
	KeyY              KeybdKey = "YKey"
	KeyZ              KeybdKey = "ZKey"
	KeyLSuper         KeybdKey = "LSuper"
	KeyRSuper         KeybdKey = "RSuper"
	KeyNumpad0        KeybdKey = "Numpad0Key"
	KeyNumpad1        KeybdKey = "Numpad1Key"
	KeyNumpad2        KeybdKey = "Numpad2Key"
	KeyNumpad3        KeybdKey = "Numpad3Key"
	KeyNumpad4        KeybdKey = "Numpad4Key"
	KeyNumpad5        KeybdKey = "Numpad5Key"
	KeyNumpad6        KeybdKey = "Numpad6Key"
	KeyNumpad7        KeybdKey = "Numpad7Key"
	KeyNumpad8        KeybdKey = "Numpad8Key"
	KeyNumpad9        KeybdKey = "Numpad9Key"
	KeyF1             KeybdKey = "F1Key"
	KeyF2             KeybdKey = "F2Key"
	KeyF3             KeybdKey = "F3Key"
	KeyF4             KeybdKey = "F4Key"
	KeyF5             KeybdKey = "F5Key"
	KeyF6             KeybdKey = "F6Key"
	KeyF7             KeybdKey = "F7Key"
	KeyF8             KeybdKey = "F8Key"
	KeyF9             KeybdKey = "F9Key"
	KeyF10            KeybdKey = "F10Key"
	KeyF11            KeybdKey = "F11Key"
	KeyF12            KeybdKey = "F12Key"
	KeyF13            KeybdKey = "F13Key"
	KeyF14            KeybdKey = "F14Key"
	KeyF15            KeybdKey = "F15Key"
	KeyF16            KeybdKey = "F16Key"
	KeyF17            KeybdKey = "F17Key"
	KeyF18            KeybdKey = "F18Key"
	KeyF19            KeybdKey = "F19Key"
	KeyF20            KeybdKey = "F20Key"
	KeyF21            KeybdKey = "F21Key"
	KeyF22            KeybdKey = "F22Key"
	KeyF23            KeybdKey = "F23Key"
	KeyF24            KeybdKey = "F24Key"
	KeyNumLock        KeybdKey = "NumLockKey"
	KeyScrollLock     KeybdKey = "ScrollLockKey"
	KeyCapsLock       KeybdKey = "CapsLockKey"
	KeyLShift         KeybdKey = "LShiftKey"
	KeyRShift         KeybdKey = "RShiftKey"
	KeyLControl       KeybdKey = "LControlKey"
	KeyRControl       KeybdKey = "RControlKey"
	KeyLAlt           KeybdKey = "LAltKey"
	KeyRAlt           KeybdKey = "RAltKey"
	KeyBrowserBack    KeybdKey = "BrowserBackKey"
	KeyBrowserForward KeybdKey = "BrowserForwardKey"
	KeyBrowserRefresh KeybdKey = "BrowserRefreshKey"
	KeyVolumeMute     KeybdKey = "VolumeMuteKey"
	KeyVolumeDown     KeybdKey = "VolumeDownKey"
	KeyVolumeUp       KeybdKey = "VolumeUpKey"
	KeyMediaNextTrack KeybdKey = "MediaNextTrackKey"
	KeyMediaPrevTrack KeybdKey = "MediaPrevTrackKey"
	KeyMediaStop      KeybdKey = "MediaStopKey"
	KeyMediaPlayPause KeybdKey = "MediaPlayPauseKey"
	KeyBackquote      KeybdKey = "BackquoteKey"
	KeySlash          KeybdKey = "SlashKey"
	KeyBackslash      KeybdKey = "BackslashKey"
	KeyComma          KeybdKey = "CommaKey"
	KeyPeriod         KeybdKey = "PeriodKey"
	KeyMinus          KeybdKey = "MinusKey"
	KeyQuote          KeybdKey = "QuoteKey"
	KeySemicolon      KeybdKey = "SemicolonKey"
	KeyLBracket       KeybdKey = "LBracketKey"
	KeyRBracket       KeybdKey = "RBracketKey"
	KeyEqual          KeybdKey = "EqualKey"
)

// keybdKeys lists every key in canonical order.
var keybdKeys = []KeybdKey{
	KeyBackspace,
	KeyTab,
	KeyEnter,
	KeyEscape,
	KeySpace,
	KeyPageUp,
	KeyPageDown,
	KeyEnd,
	KeyHome,
	KeyLeft,
	KeyUp,
	KeyRight,
	KeyDown,
	KeyInsert,
	KeyDelete,
	KeyNumrow0,
	KeyNumrow1,
	KeyNumrow2,
	KeyNumrow3,
	KeyNumrow4,
	KeyNumrow5,
	KeyNumrow6,
	KeyNumrow7,
	KeyNumrow8,
	KeyNumrow9,
	KeyA,
	KeyB,
	KeyC,
	KeyD,
	KeyE,
	KeyF,
	KeyG,
	KeyH,
	KeyI,
	KeyJ,
	KeyK,
	KeyL,
	KeyM,
	KeyN,
	KeyO,
	KeyP,
	KeyQ,
	KeyR,
	KeyS,
	KeyT,
	KeyU,
	KeyV,
	KeyW,
	KeyX,
	KeyY,
	KeyZ,
	KeyLSuper,
	KeyRSuper,
	KeyNumpad0,
	KeyNumpad1,
	KeyNumpad2,
	KeyNumpad3,
	KeyNumpad4,
	KeyNumpad5,
	KeyNumpad6,
	KeyNumpad7,
	KeyNumpad8,
	KeyNumpad9,
	KeyF1,
	KeyF2,
	KeyF3,
	KeyF4,
	KeyF5,
	KeyF6,
	KeyF7,
	KeyF8,
	KeyF9,
	KeyF10,
	KeyF11,
	KeyF12,
	KeyF13,
	KeyF14,
	KeyF15,
	KeyF16,
	KeyF17,
	KeyF18,
	KeyF19,
	KeyF20,
	KeyF21,
	KeyF22,
	KeyF23,
	KeyF24,
	KeyNumLock,
	KeyScrollLock,
	KeyCapsLock,
	KeyLShift,
	KeyRShift,
	KeyLControl,
	KeyRControl,
	KeyLAlt,
	KeyRAlt,
	KeyBrowserBack,
	KeyBrowserForward,
	KeyBrowserRefresh,
	KeyVolumeMute,
	KeyVolumeDown,
	KeyVolumeUp,
	KeyMediaNextTrack,
	KeyMediaPrevTrack,
	KeyMediaStop,
	KeyMediaPlayPause,
	KeyBackquote,
	KeySlash,
	KeyBackslash,
	KeyComma,
	KeyPeriod,
	KeyMinus,
	KeyQuote,
	KeySemicolon,
	KeyLBracket,
	KeyRBracket,
	KeyEqual,
}

var keybdKeySet = func() map[KeybdKey]bool {
	m := make(map[KeybdKey]bool, len(keybdKeys))
	for _, k := range keybdKeys {
		m[k] = true
	}
	return m
}()

// Keys returns a copy of the key enumeration in canonical order.
func Keys() []KeybdKey {
	out := make([]KeybdKey, len(keybdKeys))
	copy(out, keybdKeys)
	return out
}

// Valid reports whether k belongs to the enumeration.
func (k KeybdKey) Valid() bool {
	return keybdKeySet[k]
}

// ParseKey returns the key named s.
func ParseKey(s string) (KeybdKey, error) {
	k := KeybdKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown key %q", s)
	}
	return k, nil
}

// UnmarshalYAML rejects identifiers outside the enumeration.
func (k *KeybdKey) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKey(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*k = parsed
	return nil
}

// UnmarshalJSON rejects identifiers outside the enumeration.
func (k *KeybdKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// JSONSchema describes the key as a string enum.
func (KeybdKey) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Title: "KeybdKey"}
	for _, k := range keybdKeys {
		s.Enum = append(s.Enum, string(k))
	}
	return s
}

// SortKeys orders keys by their position in the enumeration.
func SortKeys(keys []KeybdKey) {
	pos := make(map[KeybdKey]int, len(keybdKeys))
	for i, k := range keybdKeys {
		pos[k] = i
	}
	sort.SliceStable(keys, func(i, j int) bool { return pos[keys[i]] < pos[keys[j]] })
}
