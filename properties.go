package boundaries

// Properties assigned to every enriched region.
const (
	PROPERTY_ID                   string = "ID"
	PROPERTY_NAME                 string = "NAME"
	PROPERTY_DISPLAY_NAME         string = "DISPLAY_NAME"
	PROPERTY_LAT                  string = "LAT"
	PROPERTY_LNG                  string = "LNG"
	PROPERTY_LABEL_POINTS         string = "LABEL_POINTS"
	PROPERTY_WITHIN_BBOX          string = "WITHIN_BBOX"
	PROPERTY_AREA_WITHIN_BBOX_KM2 string = "AREA_WITHIN_BBOX_KM2"
	PROPERTY_TOTAL_AREA_KM2       string = "TOTAL_AREA_KM2"
	PROPERTY_POPULATION           string = "POPULATION"
	PROPERTY_UNIT_TYPE            string = "UNIT_TYPE"
	PROPERTY_UNIT_TYPE_CODE       string = "UNIT_TYPE_CODE"
)
