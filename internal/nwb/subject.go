package nwb

import (
	"context"
	"time"

	"nwbio/internal/core"
)

// SubjectInfo describes the animal or person recorded from.  Empty fields
// are left out of the file.
type SubjectInfo struct {
	// Age is an ISO 8601 duration such as P90D.
	Age string
	// AgeReference is "birth" or "gestational"; the file default is birth.
	AgeReference string
	DateOfBirth  time.Time
	Description  string
	Genotype     string
	Sex          string
	Species      string
	Strain       string
	SubjectID    string
	Weight       string
}

type Subject struct {
	*core.Container
}

func NewSubject(tm *core.TypeMap, info SubjectInfo) (*Subject, error) {
	s, err := newTyped[*Subject](tm, CoreNamespace, "Subject", "subject")
	if err != nil {
		return nil, err
	}
	if err := setFields(s.Container,
		fieldValue{"age", info.Age},
		fieldValue{"description", info.Description},
		fieldValue{"genotype", info.Genotype},
		fieldValue{"sex", info.Sex},
		fieldValue{"species", info.Species},
		fieldValue{"strain", info.Strain},
		fieldValue{"subject_id", info.SubjectID},
		fieldValue{"weight", info.Weight},
	); err != nil {
		return nil, err
	}
	if info.Age != "" && info.AgeReference != "" {
		if err := s.Set("age_reference", info.AgeReference); err != nil {
			return nil, err
		}
	}
	if !info.DateOfBirth.IsZero() {
		if err := s.Set("date_of_birth", info.DateOfBirth); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Info reads the subject back.
func (s *Subject) Info(ctx context.Context) (SubjectInfo, error) {
	var info SubjectInfo
	texts := []struct {
		field string
		dst   *string
	}{
		{"age", &info.Age},
		{"description", &info.Description},
		{"genotype", &info.Genotype},
		{"sex", &info.Sex},
		{"species", &info.Species},
		{"strain", &info.Strain},
		{"subject_id", &info.SubjectID},
		{"weight", &info.Weight},
	}
	for _, t := range texts {
		v, err := textValue(ctx, s.Field(t.field))
		if err != nil {
			return SubjectInfo{}, err
		}
		*t.dst = v
	}
	if info.Age != "" {
		info.AgeReference = s.AgeReference()
	}
	if s.Field("date_of_birth") != nil {
		dob, err := timeValue(ctx, s.Field("date_of_birth"))
		if err != nil {
			return SubjectInfo{}, err
		}
		info.DateOfBirth = dob
	}
	return info, nil
}

// AgeReference returns what the age counts from, birth unless set.
func (s *Subject) AgeReference() string {
	if ref := stringAttr(s.Container, "age_reference"); ref != "" {
		return ref
	}
	return "birth"
}

func (s *Subject) SubjectID(ctx context.Context) (string, error) {
	return textValue(ctx, s.Field("subject_id"))
}

func (s *Subject) Species(ctx context.Context) (string, error) {
	return textValue(ctx, s.Field("species"))
}

// LabMetaData is lab-specific metadata.  Extensions define its subtypes;
// those without a container of their own are built as LabMetaData.
type LabMetaData struct {
	*core.Container
}

func NewLabMetaData(tm *core.TypeMap, name string) (*LabMetaData, error) {
	return newTyped[*LabMetaData](tm, CoreNamespace, "LabMetaData", name)
}

// SetSubject records the subject of the session.
func (f *NWBFile) SetSubject(s *Subject) error {
	return f.Set("subject", s)
}

func (f *NWBFile) Subject() *Subject {
	s, _ := f.Field("subject").(*Subject)
	return s
}

// AddLabMetaData stores lab-specific metadata under /general.
func (f *NWBFile) AddLabMetaData(obj core.Object) error {
	return f.AddChild("lab_meta_data", obj)
}

func (f *NWBFile) LabMetaData(name string) (core.Object, bool) {
	return f.Child("lab_meta_data", name)
}
