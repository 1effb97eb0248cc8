package hid

// ClassCode is the HID interface class code.
const ClassCode uint8 = 0x03

// HID specification release advertised in the class descriptor (1.11 BCD).
const specRelease uint16 = 0x0111

// Class descriptor types.
const (
	DescriptorTypeHID    uint8 = 0x21
	DescriptorTypeReport uint8 = 0x22
)

// HID class-specific request codes (HID 1.11, 7.2).
const (
	RequestGetReport   uint8 = 0x01
	RequestGetIdle     uint8 = 0x02
	RequestGetProtocol uint8 = 0x03
	RequestSetReport   uint8 = 0x09
	RequestSetIdle     uint8 = 0x0A
	RequestSetProtocol uint8 = 0x0B
)

// SubClass is bInterfaceSubClass.
type SubClass uint8

const (
	SubClassNone SubClass = 0x00
	SubClassBoot SubClass = 0x01
)

// Protocol is bInterfaceProtocol, meaningful only with SubClassBoot.
type Protocol uint8

const (
	ProtocolNone     Protocol = 0x00
	ProtocolKeyboard Protocol = 0x01
	ProtocolMouse    Protocol = 0x02
)

// Wire values carried by GET_PROTOCOL and SET_PROTOCOL.
const (
	protocolWireBoot   uint8 = 0
	protocolWireReport uint8 = 1
)

// ProtocolMode controls how the class answers SET_PROTOCOL.
type ProtocolMode uint8

const (
	// ProtocolModeDefault starts in report protocol and lets the host
	// switch.
	ProtocolModeDefault ProtocolMode = iota
	// ProtocolModeForceReport acknowledges SET_PROTOCOL but always stays
	// in report protocol.
	ProtocolModeForceReport
	// ProtocolModeForceBoot acknowledges SET_PROTOCOL but always stays
	// in boot protocol.
	ProtocolModeForceBoot
)

// CountryCode is bCountryCode of the HID descriptor.
type CountryCode uint8

const (
	CountryNotSupported CountryCode = 0
	CountryGerman       CountryCode = 9
	CountryJapan        CountryCode = 15
	CountryUK           CountryCode = 32
	CountryUS           CountryCode = 33
	CountryInternat     CountryCode = 13
)

// ReportType classifies a report in GET_REPORT/SET_REPORT wValue.
type ReportType uint8

const (
	ReportTypeInput   ReportType = 1
	ReportTypeOutput  ReportType = 2
	ReportTypeFeature ReportType = 3
)

func (t ReportType) String() string {
	switch t {
	case ReportTypeInput:
		return "input"
	case ReportTypeOutput:
		return "output"
	case ReportTypeFeature:
		return "feature"
	}
	return "unknown"
}
