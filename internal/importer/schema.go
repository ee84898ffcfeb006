package importer

// schema.go defines the capture/deployment import template: the columns
// field biologists submit, which of them are code fields, and which carry
// the structural identity of a row.

// Template column names. The upstream header mapper guarantees uploaded
// files have already been aligned to these names.
const (
	FieldSpecies        = "species"
	FieldDeviceID       = "device_id"
	FieldDeviceMake     = "device_make"
	FieldDeviceModel    = "device_model"
	FieldFrequency      = "frequency"
	FieldFrequencyUnit  = "frequency_unit"
	FieldSex            = "sex"
	FieldLifeStage      = "life_stage"
	FieldWLHID          = "wlh_id"
	FieldAnimalID       = "animal_id"
	FieldEarTagID       = "ear_tag_id"
	FieldRegion         = "region"
	FieldPopulationUnit = "population_unit"
	FieldCaptureDate    = "capture_date"
	FieldCaptureLat     = "capture_latitude"
	FieldCaptureLong    = "capture_longitude"
	FieldMortalityDate  = "mortality_date"
	FieldRetrievalDate  = "retrieval_date"
	FieldRetrieved      = "device_retrieved"
	FieldComments       = "comments"
)

// MissingDataKey is the error key used when a row lacks the structurally
// required fields and cannot be processed at all.
const MissingDataKey = "missing_data"

// CaptureTemplate returns the field specs for the combined capture and
// collar-deployment template.
func CaptureTemplate() []FieldSpec {
	return []FieldSpec{
		{Name: FieldSpecies, Kind: FieldCode, Required: true},
		{Name: FieldDeviceID, Kind: FieldText, Required: true},
		{Name: FieldDeviceMake, Kind: FieldCode},
		{Name: FieldDeviceModel, Kind: FieldText},
		{Name: FieldFrequency, Kind: FieldNumber},
		{Name: FieldFrequencyUnit, Kind: FieldCode},
		{Name: FieldSex, Kind: FieldCode},
		{Name: FieldLifeStage, Kind: FieldCode},
		{Name: FieldWLHID, Kind: FieldText},
		{Name: FieldAnimalID, Kind: FieldText},
		{Name: FieldEarTagID, Kind: FieldText},
		{Name: FieldRegion, Kind: FieldCode},
		{Name: FieldPopulationUnit, Kind: FieldCode},
		{Name: FieldCaptureDate, Kind: FieldDate},
		{Name: FieldCaptureLat, Kind: FieldNumber},
		{Name: FieldCaptureLong, Kind: FieldNumber},
		{Name: FieldMortalityDate, Kind: FieldDate},
		{Name: FieldRetrievalDate, Kind: FieldDate},
		{Name: FieldRetrieved, Kind: FieldBool},
		{Name: FieldComments, Kind: FieldText},
	}
}

// CodeFields returns the code domain keys the template validates against.
func CodeFields(specs []FieldSpec) []string {
	var keys []string
	for _, spec := range specs {
		if spec.Kind == FieldCode {
			keys = append(keys, spec.DomainKey())
		}
	}
	return keys
}

// Classify discriminates a raw row once, by which identifying fields are
// present. Validation decides separately whether the row is acceptable for
// the template; classification only routes it.
func Classify(row RawRow) RowKind {
	hasDevice := row.Cell(FieldDeviceID) != ""
	hasAnimal := row.Cell(FieldSpecies) != "" ||
		row.Cell(FieldWLHID) != "" ||
		row.Cell(FieldAnimalID) != "" ||
		row.Cell(FieldEarTagID) != ""

	switch {
	case hasDevice && hasAnimal:
		return RowCombined
	case hasDevice && row.Cell(FieldFrequency) != "":
		return RowTelemetry
	case hasDevice:
		return RowDevice
	case hasAnimal:
		return RowAnimal
	default:
		return RowUnclassified
	}
}
