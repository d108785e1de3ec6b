// Package sign classifies raw sign activities into concrete variants
// and drives the two-phase pre-sign plus sign protocol for them.
package sign

import (
	"github.com/cxsign/cxsign/pkg/activity"
	"github.com/cxsign/cxsign/pkg/location"
)

// Kind is the concrete sign variant, resolved from the listing
// discriminant plus the per-activity sign detail.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlain
	KindPhoto
	KindLocation
	KindQrCodeStatic
	KindQrCodeRefreshing
	KindGesture
	KindSigncode
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindPhoto:
		return "photo"
	case KindLocation:
		return "location"
	case KindQrCodeStatic:
		return "qrcode"
	case KindQrCodeRefreshing:
		return "qrcode-refresh"
	case KindGesture:
		return "gesture"
	case KindSigncode:
		return "signcode"
	default:
		return "unknown"
	}
}

// Sign is one classified activity ready for the engine. Preset is the
// teacher-set location for location and QR variants when the course's
// location log has one; C is the QR code parameter.
type Sign struct {
	Raw    activity.RawSign
	Kind   Kind
	Preset *location.LocationWithRange
	C      string
}

// Classify resolves the variant. It is a pure function of the listing
// discriminant, the fetched detail and the course's preset map.
func Classify(raw activity.RawSign, detail activity.SignDetail, presets map[int64]location.LocationWithRange) Sign {
	s := Sign{Raw: raw, Kind: KindUnknown}

	attachPreset := func() {
		if p, ok := presets[raw.ActiveID]; ok {
			s.Preset = &p
		}
	}

	switch raw.OtherID {
	case "0":
		if detail.IsPhoto {
			s.Kind = KindPhoto
		} else {
			s.Kind = KindPlain
		}
	case "2":
		if detail.IsRefreshQr {
			s.Kind = KindQrCodeRefreshing
		} else {
			s.Kind = KindQrCodeStatic
		}
		if detail.SignCode != nil {
			s.C = *detail.SignCode
		}
		attachPreset()
	case "3":
		s.Kind = KindGesture
	case "4":
		s.Kind = KindLocation
		attachPreset()
	case "5":
		s.Kind = KindSigncode
	}

	return s
}

// Data is the per-attempt user input: an explicit location, an uploaded
// photo id, a gesture/signcode value and the QR enc parameter.
type Data struct {
	Location *location.Location
	PhotoID  string
	Code     string
	Enc      string
}

// Outcome is the terminal result of one sign attempt for one session.
type Outcome struct {
	Success bool
	Msg     string
}

func Succeeded() Outcome {
	return Outcome{Success: true}
}

func Failed(msg string) Outcome {
	return Outcome{Msg: msg}
}

func (o Outcome) String() string {
	if o.Success {
		return "success"
	}
	return "fail: " + o.Msg
}
