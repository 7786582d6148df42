package domain

import "github.com/JohnVinyard/annotate-api-sub000/internal/filter"

// Fields each class exposes to filter expressions.
var (
	UserFilter = filter.MustSchema(Users,
		Users.ID(), UserName, UserKind, UserDateCreated)

	SoundFilter = filter.MustSchema(Sounds,
		Sounds.ID(), SoundCreatedBy, SoundLicense, SoundTitle, SoundDuration, SoundDateCreated)

	AnnotationFilter = filter.MustSchema(Annotations,
		Annotations.ID(), AnnotationCreatedBy, AnnotationSoundID,
		AnnotationStart, AnnotationDuration, AnnotationEnd, AnnotationDateCreated)
)
