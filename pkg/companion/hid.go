package companion

import "fmt"

// Key identifies a remote button intent.
type Key int

// HID command codes. The values are part of the wire contract.
const (
	KeyUp          Key = 1
	KeyDown        Key = 2
	KeyLeft        Key = 3
	KeyRight       Key = 4
	KeyMenu        Key = 5
	KeySelect      Key = 6
	KeyHome        Key = 7
	KeyVolumeUp    Key = 8
	KeyVolumeDown  Key = 9
	KeySiri        Key = 10
	KeyScreensaver Key = 11
	KeySleep       Key = 12
	KeyWake        Key = 13
	KeyPlayPause   Key = 14
	KeyChannelInc  Key = 15
	KeyChannelDec  Key = 16
	KeyGuide       Key = 17
	KeyPageUp      Key = 18
	KeyPageDown    Key = 19
)

// String returns the key name.
func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyMenu:
		return "menu"
	case KeySelect:
		return "select"
	case KeyHome:
		return "home"
	case KeyVolumeUp:
		return "volume_up"
	case KeyVolumeDown:
		return "volume_down"
	case KeySiri:
		return "siri"
	case KeyScreensaver:
		return "screensaver"
	case KeySleep:
		return "sleep"
	case KeyWake:
		return "wake"
	case KeyPlayPause:
		return "play_pause"
	case KeyChannelInc:
		return "channel_inc"
	case KeyChannelDec:
		return "channel_dec"
	case KeyGuide:
		return "guide"
	case KeyPageUp:
		return "page_up"
	case KeyPageDown:
		return "page_down"
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

// IsValid reports whether k is a known HID code.
func (k Key) IsValid() bool {
	return k >= KeyUp && k <= KeyPageDown
}

// KeyAction selects the button gesture.
type KeyAction int

const (
	// KeyActionTap is a press-release with a 50 ms dwell.
	KeyActionTap KeyAction = iota

	// KeyActionDoubleTap is two taps 100 ms apart.
	KeyActionDoubleTap

	// KeyActionHold is a press-release with a 1 s dwell.
	KeyActionHold
)

// String returns the action name.
func (a KeyAction) String() string {
	switch a {
	case KeyActionTap:
		return "tap"
	case KeyActionDoubleTap:
		return "double_tap"
	case KeyActionHold:
		return "hold"
	default:
		return "unknown"
	}
}

// MediaCommand identifies a media-control operation.
type MediaCommand int

// Media command codes. The values are part of the wire contract.
const (
	MediaPlay             MediaCommand = 1
	MediaPause            MediaCommand = 2
	MediaNext             MediaCommand = 3
	MediaPrevious         MediaCommand = 4
	MediaGetVolume        MediaCommand = 5
	MediaSetVolume        MediaCommand = 6
	MediaSkipBy           MediaCommand = 7
	MediaFastForwardBegin MediaCommand = 8
	MediaFastForwardEnd   MediaCommand = 9
	MediaRewindBegin      MediaCommand = 10
	MediaRewindEnd        MediaCommand = 11
	MediaGetCaptions      MediaCommand = 12
	MediaSetCaptions      MediaCommand = 13
)

// String returns the command name.
func (c MediaCommand) String() string {
	switch c {
	case MediaPlay:
		return "play"
	case MediaPause:
		return "pause"
	case MediaNext:
		return "next"
	case MediaPrevious:
		return "prev"
	case MediaGetVolume:
		return "get_vol"
	case MediaSetVolume:
		return "set_vol"
	case MediaSkipBy:
		return "skip_by"
	case MediaFastForwardBegin:
		return "ff_begin"
	case MediaFastForwardEnd:
		return "ff_end"
	case MediaRewindBegin:
		return "rew_begin"
	case MediaRewindEnd:
		return "rew_end"
	case MediaGetCaptions:
		return "caption_get"
	case MediaSetCaptions:
		return "caption_set"
	default:
		return fmt.Sprintf("media(%d)", int(c))
	}
}

// IsValid reports whether c is a known media command.
func (c MediaCommand) IsValid() bool {
	return c >= MediaPlay && c <= MediaSetCaptions
}
