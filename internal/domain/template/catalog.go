package template

// Built-in template ids.
const (
	BasicMetabolicPanel     = "basic-metabolic-panel"
	CompleteBloodCount      = "complete-blood-count"
	LipidPanel              = "lipid-panel"
	LiverFunctionTest       = "liver-function-test"
	Urinalysis              = "urinalysis"
	MalariaParasite         = "malaria-parasite"
	ThyroidFunctionTest     = "thyroid-function-test"
	PsychologicalAssessment = "psychological-assessment"
)

func num(name, unit, rng string, required bool) TemplateField {
	return TemplateField{Name: name, Kind: KindNumber, Unit: unit, ReferenceRange: rng, Required: required}
}

func opts(name string, required bool, options ...string) TemplateField {
	return TemplateField{Name: name, Kind: KindOptions, Options: options, Required: required}
}

func text(name string, required bool) TemplateField {
	return TemplateField{Name: name, Kind: KindText, Required: required}
}

var dipstick = []string{"Negative", "Trace", "1+", "2+", "3+"}

var builtIns = []ResultTemplate{
	{
		ID:       BasicMetabolicPanel,
		Name:     "Basic Metabolic Panel",
		Category: "Chemistry",
		Fields: []TemplateField{
			num("Glucose", "mg/dL", "70-100", true),
			num("Calcium", "mg/dL", "8.5-10.2", false),
			num("Sodium", "mmol/L", "135-145", false),
			num("Potassium", "mmol/L", "3.5-5.0", false),
			num("CO2", "mmol/L", "23-29", false),
			num("Chloride", "mmol/L", "96-106", false),
			num("BUN", "mg/dL", "7-20", false),
			num("Creatinine", "mg/dL", "0.6-1.3", false),
		},
		InterpretationGuidelines: "Fasting glucose above 126 mg/dL on two occasions suggests diabetes. " +
			"Electrolyte values outside range should be correlated with hydration status and renal function.",
	},
	{
		ID:       CompleteBloodCount,
		Name:     "Complete Blood Count",
		Category: "Hematology",
		Fields: []TemplateField{
			num("WBC", "10^3/uL", "4.5-11.0", true),
			num("RBC", "10^6/uL", "4.5-5.9", false),
			num("Hemoglobin", "g/dL", "13.5-17.5", true),
			num("Hematocrit", "%", "41-53", false),
			num("Platelets", "10^3/uL", "150-450", false),
			num("MCV", "fL", "80-100", false),
		},
		InterpretationGuidelines: "Low hemoglobin indicates anemia; classify with MCV. " +
			"Raised WBC commonly reflects infection or inflammation.",
	},
	{
		ID:       LipidPanel,
		Name:     "Lipid Panel",
		Category: "Chemistry",
		Fields: []TemplateField{
			num("Total Cholesterol", "mg/dL", "0-200", true),
			num("HDL", "mg/dL", "40-60", false),
			num("LDL", "mg/dL", "0-100", false),
			num("Triglycerides", "mg/dL", "0-150", false),
		},
		InterpretationGuidelines: "Interpret LDL against the patient's overall cardiovascular risk. HDL below 40 mg/dL is a risk factor.",
	},
	{
		ID:       LiverFunctionTest,
		Name:     "Liver Function Test",
		Category: "Chemistry",
		Fields: []TemplateField{
			num("ALT", "U/L", "7-56", true),
			num("AST", "U/L", "10-40", true),
			num("ALP", "U/L", "44-147", false),
			num("Total Bilirubin", "mg/dL", "0.1-1.2", false),
			num("Albumin", "g/dL", "3.5-5.0", false),
		},
		InterpretationGuidelines: "An ALT/AST pattern suggests hepatocellular injury; a raised ALP with bilirubin suggests cholestasis.",
	},
	{
		ID:       Urinalysis,
		Name:     "Urinalysis",
		Category: "Microscopy",
		Fields: []TemplateField{
			opts("Color", true, "Pale Yellow", "Yellow", "Amber", "Red", "Brown"),
			opts("Appearance", true, "Clear", "Cloudy", "Turbid"),
			num("pH", "", "4.5-8.0", false),
			num("Specific Gravity", "", "1.005-1.030", false),
			opts("Protein", false, dipstick...),
			opts("Glucose", false, dipstick...),
			text("Microscopy Notes", false),
		},
		InterpretationGuidelines: "Proteinuria or glycosuria on dipstick should be confirmed with a quantitative test.",
	},
	{
		ID:       MalariaParasite,
		Name:     "Malaria Parasite",
		Category: "Parasitology",
		Fields: []TemplateField{
			opts("Result", true, "Negative", "Positive"),
			opts("Species", false, "None", "P. falciparum", "P. vivax", "P. malariae", "P. ovale"),
			num("Parasite Density", "parasites/uL", "", false),
			text("Notes", false),
		},
		InterpretationGuidelines: "A positive smear with P. falciparum requires same-day clinical review.",
	},
	{
		ID:       ThyroidFunctionTest,
		Name:     "Thyroid Function Test",
		Category: "Endocrinology",
		Fields: []TemplateField{
			num("TSH", "mIU/L", "0.4-4.0", true),
			num("Free T4", "ng/dL", "0.8-1.8", false),
			num("Free T3", "pg/mL", "2.3-4.2", false),
		},
		InterpretationGuidelines: "High TSH with low free T4 indicates primary hypothyroidism; low TSH with high free T4 indicates hyperthyroidism.",
	},
	{
		ID:       PsychologicalAssessment,
		Name:     "Psychological Assessment",
		Category: "Psychology",
		Fields: []TemplateField{
			opts("Assessment Type", true, "Cognitive", "Personality", "Behavioural", "Neuropsychological"),
			text("Findings", true),
			opts("Risk Level", false, "Low", "Moderate", "High"),
			text("Recommendation", false),
		},
		InterpretationGuidelines: "Findings are screening observations and should be discussed with the referring clinician.",
	},
}

var builtInIndex = func() map[string]int {
	m := make(map[string]int, len(builtIns))
	for i := range builtIns {
		builtIns[i].BuiltIn = true
		m[builtIns[i].ID] = i
	}
	return m
}()

// BuiltIns returns a copy of the predefined catalog.
func BuiltIns() []ResultTemplate {
	out := make([]ResultTemplate, len(builtIns))
	for i, t := range builtIns {
		out[i] = t
		out[i].Fields = append([]TemplateField(nil), t.Fields...)
	}
	return out
}

// BuiltIn returns the predefined template with the given id.
func BuiltIn(id string) (*ResultTemplate, bool) {
	i, ok := builtInIndex[id]
	if !ok {
		return nil, false
	}
	t := builtIns[i]
	t.Fields = append([]TemplateField(nil), t.Fields...)
	return &t, true
}

func IsBuiltInID(id string) bool {
	_, ok := builtInIndex[id]
	return ok
}
