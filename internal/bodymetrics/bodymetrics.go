// Package bodymetrics provides BMI, BMR and TDEE calculators.
package bodymetrics

import (
	"math"
	"strings"
)

// ActivityLevel is one step of the five-level activity scale.
type ActivityLevel string

const (
	Sedentary   ActivityLevel = "Sedentary"
	Light       ActivityLevel = "Light"
	Moderate    ActivityLevel = "Moderate"
	VeryActive  ActivityLevel = "Very Active"
	ExtraActive ActivityLevel = "Extra Active"
)

// Levels lists the activity scale from least to most active.
var Levels = []ActivityLevel{Sedentary, Light, Moderate, VeryActive, ExtraActive}

var factors = map[ActivityLevel]float64{
	Sedentary:   1.2,
	Light:       1.375,
	Moderate:    1.55,
	VeryActive:  1.725,
	ExtraActive: 1.9,
}

// Form labels used by the Swahili sign-up form.
var swahiliLabels = []struct {
	label string
	level ActivityLevel
}{
	{"hamna kazi", Sedentary},
	{"Kidogo", Light},
	{"Kawaida", Moderate},
	{"kazi ya wakati wote", VeryActive},
	{"kazi ngumu sana", ExtraActive},
}

// Factor returns the TDEE multiplier for the level. Unknown levels use Moderate.
func (l ActivityLevel) Factor() float64 {
	if f, ok := factors[l]; ok {
		return f
	}
	return factors[Moderate]
}

// ParseActivityLevel accepts English level names (any case) and the Swahili form labels.
func ParseActivityLevel(s string) (ActivityLevel, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	for _, l := range Levels {
		if strings.ToLower(string(l)) == key {
			return l, true
		}
	}
	for _, sw := range swahiliLabels {
		if strings.ToLower(sw.label) == key {
			return sw.level, true
		}
	}
	return Moderate, false
}

// SwahiliLabel returns the form label for a level.
func (l ActivityLevel) SwahiliLabel() string {
	for _, sw := range swahiliLabels {
		if sw.level == l {
			return sw.label
		}
	}
	return ""
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// BMI returns weight / height², rounded to 2 decimals. Non-positive height gives 0.
func BMI(weightKg, heightM float64) float64 {
	if heightM <= 0 {
		return 0
	}
	return round2(weightKg / (heightM * heightM))
}

// IsMale reports whether a sex code denotes male. Anything other than "M" is female.
func IsMale(sex string) bool {
	return strings.EqualFold(strings.TrimSpace(sex), "M")
}

// BMR returns the Mifflin-St Jeor basal metabolic rate, rounded to 2 decimals.
func BMR(weightKg, heightCm float64, age int, sex string) float64 {
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	if IsMale(sex) {
		return round2(base + 5)
	}
	return round2(base - 161)
}

// TDEE scales bmr by the activity factor of level, rounded to 2 decimals.
// level must match a level name exactly; anything else uses the Moderate factor.
// Use ParseActivityLevel first for user input.
func TDEE(bmr float64, level string) float64 {
	return round2(bmr * ActivityLevel(level).Factor())
}

// BMICategory returns the WHO weight band for a BMI value.
func BMICategory(bmi float64) string {
	switch {
	case bmi <= 0:
		return "Unknown"
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25.0:
		return "Normal weight"
	case bmi < 30.0:
		return "Overweight"
	case bmi < 35.0:
		return "Obesity class I"
	case bmi < 40.0:
		return "Obesity class II"
	default:
		return "Obesity class III"
	}
}

// Profile is the anthropometric input of one user.
type Profile struct {
	Sex           string  `json:"sex" validate:"required,oneof=M F m f"`
	ActivityLevel string  `json:"activity_level" validate:"required"`
	HeightM       float64 `json:"height_m" validate:"gt=0,lte=3"`
	WeightKg      float64 `json:"weight_kg" validate:"gt=0,lte=500"`
	Age           int     `json:"age" validate:"gte=1,lte=130"`
}

// Metrics is the set of values derived from a Profile.
type Metrics struct {
	Category      string        `json:"bmi_category"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	BMI           float64       `json:"bmi"`
	BMR           float64       `json:"bmr"`
	TDEE          float64       `json:"tdee"`
	HeightCm      float64       `json:"height_cm"`
}

// Compute derives BMI, BMR and TDEE. Height in centimetres is rounded to a whole number.
func (p Profile) Compute() Metrics {
	heightCm := math.Round(p.HeightM * 100)
	level, _ := ParseActivityLevel(p.ActivityLevel)
	bmi := BMI(p.WeightKg, p.HeightM)
	bmr := BMR(p.WeightKg, heightCm, p.Age, p.Sex)
	return Metrics{
		BMI:           bmi,
		BMR:           bmr,
		TDEE:          TDEE(bmr, string(level)),
		Category:      BMICategory(bmi),
		ActivityLevel: level,
		HeightCm:      heightCm,
	}
}
