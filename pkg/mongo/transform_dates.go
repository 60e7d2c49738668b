package mongo

import (
	"github.com/dpipe/dpipe/pkg/steps"
)

// conversionOps maps the convert step's data types to $convert-family
// operators (mongo 4.0+).
var conversionOps = map[string]string{
	"boolean": "$toBool",
	"date":    "$toDate",
	"float":   "$toDouble",
	"integer": "$toInt",
	"text":    "$toString",
}

func transformConvert(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ConvertStep)

	op, ok := conversionOps[step.DataType]
	if !ok {
		return nil, NewInvalidStepError("convert", "unknown data type "+step.DataType)
	}

	fields := M{}
	for _, c := range step.Columns {
		fields[c] = M{op: Ref(c)}
	}

	return []Stage{addFields(fields)}, nil
}

func transformToDate(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.ToDateStep)

	var expr M
	if step.Format == "" {
		expr = M{"$toDate": Ref(step.Column)}
	} else {
		expr = M{"$dateFromString": M{
			"dateString": Ref(step.Column),
			"format":     step.Format,
		}}
	}

	return []Stage{addFields(M{step.Column: expr})}, nil
}

func transformFromDate(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.FromDateStep)
	return []Stage{addFields(M{
		step.Column: M{"$dateToString": M{
			"date":   Ref(step.Column),
			"format": step.Format,
		}},
	})}, nil
}

// dateExtractOps maps the dateextract step's operations to date operators.
var dateExtractOps = map[string]string{
	"year":         "$year",
	"month":        "$month",
	"day":          "$dayOfMonth",
	"hour":         "$hour",
	"minutes":      "$minute",
	"seconds":      "$second",
	"milliseconds": "$millisecond",
	"dayOfYear":    "$dayOfYear",
	"dayOfWeek":    "$dayOfWeek",
	"week":         "$week",
}

func transformDateExtract(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.DateExtractStep)

	op, ok := dateExtractOps[step.Operation]
	if !ok {
		return nil, NewInvalidStepError("dateextract", "unknown operation "+step.Operation)
	}

	return []Stage{addFields(M{
		step.DestinationColumn(): M{op: Ref(step.Column)},
	})}, nil
}

// durationDivisors convert a millisecond date difference into the
// requested unit.
var durationDivisors = map[string]int{
	"seconds": 1000,
	"minutes": 1000 * 60,
	"hours":   1000 * 60 * 60,
	"days":    1000 * 60 * 60 * 24,
}

func transformDuration(_ *Translator, _ int, s steps.Step) ([]Stage, error) {
	step := s.(*steps.DurationStep)

	divisor, ok := durationDivisors[step.DurationIn]
	if !ok {
		return nil, NewInvalidStepError("duration", "unknown duration unit "+step.DurationIn)
	}

	return []Stage{addFields(M{
		step.NewColumnName: M{"$divide": []any{
			M{"$subtract": []any{Ref(step.EndDateColumn), Ref(step.StartDateColumn)}},
			divisor,
		}},
	})}, nil
}
