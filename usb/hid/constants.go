package hid

// Usage pages (HID Usage Tables 1.12).
const (
	UsagePageGenericDesktop uint16 = 0x01
	UsagePageSimulation     uint16 = 0x02
	UsagePageKeyboard       uint16 = 0x07
	UsagePageLEDs           uint16 = 0x08
	UsagePageButton         uint16 = 0x09
	UsagePageConsumer       uint16 = 0x0C
)

// Generic Desktop usages.
const (
	UsagePointer  uint16 = 0x01
	UsageMouse    uint16 = 0x02
	UsageJoystick uint16 = 0x04
	UsageGamePad  uint16 = 0x05
	UsageKeyboard uint16 = 0x06
)

// CollectionKind is the single data byte of a Collection item.
type CollectionKind uint8

const (
	CollectionPhysical    CollectionKind = 0x00
	CollectionApplication CollectionKind = 0x01
	CollectionLogical     CollectionKind = 0x02
	CollectionReport      CollectionKind = 0x03
)

// MainFlags is the data byte of Input/Output/Feature items. Each pair's
// zero value is the default, so flags compose with bitwise or.
type MainFlags uint8

const (
	MainData  MainFlags = 0x00
	MainConst MainFlags = 0x01

	MainArray MainFlags = 0x00
	MainVar   MainFlags = 0x02

	MainAbs MainFlags = 0x00
	MainRel MainFlags = 0x04

	MainNoWrap MainFlags = 0x00
	MainWrap   MainFlags = 0x08

	MainLinear    MainFlags = 0x00
	MainNonLinear MainFlags = 0x10

	MainPreferredState   MainFlags = 0x00
	MainNoPreferredState MainFlags = 0x20

	MainNoNullPosition MainFlags = 0x00
	MainNullState      MainFlags = 0x40

	MainNonVolatile MainFlags = 0x00
	MainVolatile    MainFlags = 0x80
)
