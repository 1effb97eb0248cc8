package hid

import "fmt"

// UsagePage selects the current usage page (global).
type UsagePage struct{ Page uint16 }

func (u UsagePage) encode(e *encoder) error {
	return e.item(tagUsagePage, ItemTypeGlobal, unsignedData(uint32(u.Page)))
}

// Usage selects the current usage (local).
type Usage struct{ Usage uint16 }

func (u Usage) encode(e *encoder) error {
	return e.item(tagUsage, ItemTypeLocal, unsignedData(uint32(u.Usage)))
}

// UsageMinimum opens a usage range (local).
type UsageMinimum struct{ Min uint16 }

func (u UsageMinimum) encode(e *encoder) error {
	return e.item(tagUsageMinimum, ItemTypeLocal, unsignedData(uint32(u.Min)))
}

// UsageMaximum closes a usage range (local).
type UsageMaximum struct{ Max uint16 }

func (u UsageMaximum) encode(e *encoder) error {
	return e.item(tagUsageMaximum, ItemTypeLocal, unsignedData(uint32(u.Max)))
}

// LogicalMinimum sets the smallest reportable value (global).
type LogicalMinimum struct{ Min int32 }

func (l LogicalMinimum) encode(e *encoder) error {
	return e.item(tagLogicalMinimum, ItemTypeGlobal, signedData(l.Min))
}

// LogicalMaximum sets the largest reportable value (global).
type LogicalMaximum struct{ Max int32 }

func (l LogicalMaximum) encode(e *encoder) error {
	return e.item(tagLogicalMaximum, ItemTypeGlobal, signedData(l.Max))
}

// ReportSize sets the element width in bits (global).
type ReportSize struct{ Bits uint8 }

func (r ReportSize) encode(e *encoder) error {
	return e.item(tagReportSize, ItemTypeGlobal, []byte{r.Bits})
}

// ReportCount sets the number of elements (global).
type ReportCount struct{ Count uint16 }

func (r ReportCount) encode(e *encoder) error {
	return e.item(tagReportCount, ItemTypeGlobal, unsignedData(uint32(r.Count)))
}

// ReportID tags following main items with a report ID (global).
type ReportID struct{ ID uint8 }

func (r ReportID) encode(e *encoder) error {
	return e.item(tagReportID, ItemTypeGlobal, []byte{r.ID})
}

// Collection groups items (main). End Collection is emitted implicitly
// after the nested items.
type Collection struct {
	Kind  CollectionKind
	Items []Item
}

func (c Collection) encode(e *encoder) error {
	if err := e.item(tagCollection, ItemTypeMain, []byte{uint8(c.Kind)}); err != nil {
		return err
	}
	for _, it := range c.Items {
		if it == nil {
			return fmt.Errorf("hid: nil item in collection")
		}
		if err := it.encode(e); err != nil {
			return err
		}
	}
	return e.item(tagEndCollection, ItemTypeMain, nil)
}

// Input declares an input field (main).
type Input struct{ Flags MainFlags }

func (i Input) encode(e *encoder) error {
	return e.item(tagInput, ItemTypeMain, []byte{uint8(i.Flags)})
}

// Output declares an output field (main).
type Output struct{ Flags MainFlags }

func (o Output) encode(e *encoder) error {
	return e.item(tagOutput, ItemTypeMain, []byte{uint8(o.Flags)})
}

// Feature declares a feature field (main).
type Feature struct{ Flags MainFlags }

func (f Feature) encode(e *encoder) error {
	return e.item(tagFeature, ItemTypeMain, []byte{uint8(f.Flags)})
}

// Raw is an escape hatch for short items this package has no struct for.
// Data must be 0, 1, 2 or 4 bytes long.
type Raw struct {
	Type ItemType
	Tag  uint8
	Data []byte
}

func (r Raw) encode(e *encoder) error {
	return e.item(r.Tag, r.Type, r.Data)
}
