package engine

import "clearline/internal/domain"

// StageCatalog maps shipment type to clearance stage to the task names that
// stage usually requires. Free-form stage names here are distinct from the
// fixed tracking-stage lifecycle.
var StageCatalog = map[string]map[string][]string{
	domain.ShipmentImport: {
		"Pre-Arrival Documentation": {
			"Bill of Lading Collection",
			"Commercial Invoice Review",
			"Packing List Verification",
			"Certificate of Origin",
		},
		"Customs Declaration": {
			"HS Code Classification",
			"Declaration Form Preparation",
			"Declaration Submission",
		},
		"Duty Payment": {
			"Duty Calculation",
			"Payment Processing",
			"Receipt Collection",
		},
		"Inspection": {
			"Inspection Scheduling",
			"Physical Inspection Attendance",
			"Sample Collection",
		},
		"Port Fees": {
			"Port Charges Settlement",
			"Storage Fee Clearance",
		},
		"Release": {
			"Release Order Collection",
			"Gate Pass Issuance",
		},
		"Delivery": {
			"Transport Arrangement",
			"Delivery Confirmation",
		},
	},
	domain.ShipmentExport: {
		"Export Documentation": {
			"Export Invoice Preparation",
			"Packing List Preparation",
			"Certificate of Origin Application",
		},
		"Customs Declaration": {
			"Export Declaration Preparation",
			"Declaration Submission",
		},
		"Quality Standards": {
			"Standards Certificate Application",
			"Fumigation Certificate",
		},
		"Port Handling": {
			"Port Charges Settlement",
			"Container Booking",
		},
		"Loading": {
			"Loading Supervision",
			"Stuffing Report",
		},
		"Shipment Tracking": {
			"Bill of Lading Issuance",
			"Departure Confirmation",
		},
	},
}

type templateTask struct {
	Title     string
	StageType string
	Category  string
}

// defaultTaskTemplate is used when a project carries no activities. Twelve
// tasks spread over the eleven tracking stages, due one day apart starting
// at the project start date.
var defaultTaskTemplate = []templateTask{
	{"Collect Pre-Arrival Documents", "PRE_ARRIVAL_DOCS", domain.CategoryDocumentation},
	{"Confirm Vessel Arrival", "VESSEL_ARRIVAL", domain.CategoryGeneral},
	{"Prepare Customs Declaration", "CUSTOMS_DECLARATION", domain.CategoryCustomsDeclaration},
	{"Submit Customs Declaration", "CUSTOMS_DECLARATION", domain.CategoryCustomsDeclaration},
	{"Process Duty Payment", "CUSTOMS_PAYMENT", domain.CategoryPayment},
	{"Attend Customs Inspection", "INSPECTION", domain.CategoryInspection},
	{"Settle Port Fees", "PORT_FEES", domain.CategoryPayment},
	{"Obtain Quality Certificates", "QUALITY_STANDARDS", domain.CategoryInspection},
	{"Collect Release Order", "RELEASE", domain.CategoryRelease},
	{"Arrange Loading and Transport", "LOADING", domain.CategoryDelivery},
	{"Monitor Transit Status", "IN_TRANSIT", domain.CategoryGeneral},
	{"Confirm Final Delivery", "DELIVERED", domain.CategoryDelivery},
}
