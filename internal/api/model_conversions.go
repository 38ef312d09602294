package api

import (
	"person-id-backend/internal/core"
	"person-id-backend/internal/database"
	"person-id-backend/pkg/api"
)

func convertTrainingJob(job database.TrainingJob) api.TrainingJob {
	res := api.TrainingJob{
		Id:            job.Id,
		GroupName:     job.GroupName,
		PersonName:    job.PersonName,
		Mode:          job.Mode,
		Status:        job.Status,
		Error:         job.Error,
		Images:        database.SplitImages(job.Images),
		AcceptedFaces: job.AcceptedFaces,
		CreationTime:  job.CreationTime,
	}
	if job.GroupId.Valid {
		res.GroupId = &job.GroupId.UUID
	}
	if job.CompletionTime.Valid {
		res.CompletionTime = &job.CompletionTime.Time
	}
	return res
}

func convertGroup(group database.PersonGroup) api.PersonGroup {
	people := make([]api.Person, 0, len(group.People))
	for _, person := range group.People {
		people = append(people, api.Person{Id: person.Id, Name: person.Name})
	}

	return api.PersonGroup{
		Id:        group.Id,
		Name:      group.Name,
		IsTrained: group.IsTrained,
		IsDeleted: group.IsDeleted,
		CreatedBy: group.CreatedBy,
		CreatedAt: group.CreatedAt,
		People:    people,
	}
}

func convertMatch(match core.IdentificationMatch) api.IdentificationMatch {
	verifications := make([]api.Verification, 0, len(match.Verifications))
	for _, v := range match.Verifications {
		verifications = append(verifications, api.Verification{FaceId: v.FaceId.UUID, IsMatch: v.IsMatch, Confidence: v.Confidence})
	}

	return api.IdentificationMatch{
		GroupId:         match.GroupId.UUID,
		GroupName:       match.GroupName,
		PersonId:        match.PersonId.UUID,
		PersonName:      match.PersonName,
		SourceImageName: match.SourceImageName,
		SourceImageUrl:  match.SourceImageUrl,
		Verifications:   verifications,
	}
}
