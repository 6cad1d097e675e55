package catalog

// File is the on-disk catalog layout shared by the YAML and JSON formats.
type File struct {
	Scenarios []ScenarioFile `json:"scenarios" yaml:"scenarios" validate:"required,min=1,dive"`
	Zones     []ZoneFile     `json:"zones" yaml:"zones" validate:"required,min=1,dive"`
}

// ScenarioFile describes one scenario template.
type ScenarioFile struct {
	Name          string             `json:"name" yaml:"name" validate:"required"`
	Category      string             `json:"category" yaml:"category" validate:"required"`
	Priority      int                `json:"priority" yaml:"priority" validate:"min=1,max=4"`
	RequiredUnits int                `json:"required_units" yaml:"required_units" validate:"gte=0,lte=10"`
	ResponseCode  string             `json:"response_code" yaml:"response_code" validate:"omitempty,oneof=2 3 code2 code3"`
	LocationTypes []string           `json:"location_types" yaml:"location_types" validate:"omitempty,dive,required"`
	Descriptions  []string           `json:"descriptions" yaml:"descriptions"`
	Probability   float64            `json:"probability" yaml:"probability" validate:"gt=0"`
	Multipliers   map[string]float64 `json:"multipliers" yaml:"multipliers" validate:"omitempty,dive,keys,oneof=morning day evening night,endkeys,gte=0"`
}

// ZoneFile describes one zone and its location pool.
type ZoneFile struct {
	ID           string                        `json:"id" yaml:"id" validate:"required"`
	Name         string                        `json:"name" yaml:"name"`
	Size         string                        `json:"size" yaml:"size"`
	Population   string                        `json:"population" yaml:"population"`
	SocialClass  string                        `json:"social_class" yaml:"social_class"`
	AverageCalls map[string]int                `json:"average_calls" yaml:"average_calls" validate:"required,dive,keys,oneof=morning day evening night,endkeys,gte=0"`
	Categories   map[string]map[string]float64 `json:"categories" yaml:"categories" validate:"required,min=1,dive,omitempty,dive,keys,oneof=morning day evening night,endkeys,gte=0"`
	Locations    []LocationFile                `json:"locations" yaml:"locations" validate:"required,min=1,dive"`
}

// LocationFile describes a concrete location inside a zone.
type LocationFile struct {
	ID   string  `json:"id" yaml:"id" validate:"required"`
	Type string  `json:"type" yaml:"type" validate:"required"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
}
