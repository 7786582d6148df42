package domain

import (
	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/filter"
	"github.com/JohnVinyard/annotate-api-sub000/internal/mapper"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

var UserMapper = mapper.MustNew(Users,
	mapper.Map(UserDateCreated),
	mapper.Map(UserDeleted),
	mapper.Map(UserName),
	mapper.Map(UserPassword),
	mapper.Enum(UserKind),
	mapper.Map(UserEmail),
	mapper.Map(UserAboutMe),
	mapper.Map(UserInfoURL),
)

var SoundMapper = mapper.MustNew(Sounds,
	mapper.Map(SoundCreatedBy),
	mapper.Map(SoundDateCreated),
	mapper.Map(SoundAudioURL),
	mapper.Map(SoundLowQualityAudioURL),
	mapper.Map(SoundInfoURL),
	mapper.Enum(SoundLicense),
	mapper.Map(SoundTitle),
	mapper.Map(SoundDuration),
	mapper.Map(SoundTags),
)

var AnnotationMapper = mapper.MustNew(Annotations,
	mapper.Map(AnnotationCreatedBy),
	mapper.Map(AnnotationDateCreated),
	mapper.Map(AnnotationSoundID),
	mapper.Map(AnnotationStart),
	mapper.Map(AnnotationDuration),
	mapper.Map(AnnotationEnd),
	mapper.Map(AnnotationTags),
	mapper.Map(AnnotationDataURL),
)

// Collection describes how one entity class is stored.
type Collection struct {
	Name    string
	Mapper  *mapper.Mapper
	Indexes []repository.Index
	Filter  *filter.Schema
}

// Collections returns the storage layout of every entity class.
func Collections() []Collection {
	return []Collection{
		collection("users", UserMapper, UserFilter,
			[]entity.Descriptor{UserName, UserEmail},
			[]entity.Descriptor{UserKind, UserDateCreated}),
		collection("sounds", SoundMapper, SoundFilter,
			[]entity.Descriptor{SoundAudioURL},
			[]entity.Descriptor{SoundCreatedBy, SoundDateCreated}),
		collection("annotations", AnnotationMapper, AnnotationFilter,
			nil,
			[]entity.Descriptor{AnnotationSoundID, AnnotationCreatedBy, AnnotationDateCreated}),
	}
}

func collection(name string, m *mapper.Mapper, f *filter.Schema, unique, plain []entity.Descriptor) Collection {
	indexes, err := repository.Indexes(m, unique, plain)
	if err != nil {
		panic(err)
	}
	return Collection{Name: name, Mapper: m, Indexes: indexes, Filter: f}
}
