package models

// ReportPayload is the structured content of a daily inspection report.
// The sync engine mostly passes it through; it only walks the blocks to
// swap attachment placeholders for remote references during commit.
type ReportPayload struct {
	ReportDate  string `json:"reportDate"`
	Spread      string `json:"spread"`
	InspectorID string `json:"inspectorId"`
	CompanyID   string `json:"companyId"`

	Weather   string `json:"weather,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Signature string `json:"signature,omitempty"` // attachment id of the signature image

	Blocks []ActivityBlock `json:"blocks"`
}

// ActivityBlock is one activity sub-section of a report. The optional
// per-activity detail structs form a tagged union keyed by ActivityType;
// at most one of them is set.
type ActivityBlock struct {
	BlockID      string `json:"blockId"`
	ActivityType string `json:"activityType"`

	// Chainage range covered by this block, in field notation ("12+500")
	StationStart string `json:"stationStart,omitempty"`
	StationEnd   string `json:"stationEnd,omitempty"`

	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	CrewSize int     `json:"crewSize,omitempty"`
	Comments string  `json:"comments,omitempty"`

	Welding    *WeldingDetail    `json:"welding,omitempty"`
	Coating    *CoatingDetail    `json:"coating,omitempty"`
	Earthworks *EarthworksDetail `json:"earthworks,omitempty"`

	Photos []PhotoSlot `json:"photos,omitempty"`
}

// WeldingDetail holds welding-specific fields
type WeldingDetail struct {
	WeldCount     int      `json:"weldCount"`
	RepairCount   int      `json:"repairCount,omitempty"`
	WelderIDs     []string `json:"welderIds,omitempty"`
	Procedure     string   `json:"procedure,omitempty"`
	NDTPercentage float64  `json:"ndtPercentage,omitempty"`
}

// CoatingDetail holds coating-specific fields
type CoatingDetail struct {
	System      string  `json:"system,omitempty"`
	BatchNumber string  `json:"batchNumber,omitempty"`
	DFTMicrons  float64 `json:"dftMicrons,omitempty"`
	Holidays    int     `json:"holidays,omitempty"`
}

// EarthworksDetail holds trench/backfill-specific fields
type EarthworksDetail struct {
	DepthMetres   float64 `json:"depthMetres,omitempty"`
	PaddingType   string  `json:"paddingType,omitempty"`
	RockEncounter bool    `json:"rockEncounter,omitempty"`
}

// PhotoSlot is an attachment placeholder inside a block. While the report is
// local, AttachmentID points into the attachment collection; at commit time
// the sync engine fills RemoteRef and the slot order is preserved.
type PhotoSlot struct {
	AttachmentID string `json:"attachmentId"`
	Caption      string `json:"caption,omitempty"`
	Position     int    `json:"position"`
	RemoteRef    string `json:"remoteRef,omitempty"`
}
