package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
)

const (
	seedPassword     = "Wazazi-2025!"
	studentsPerClass = 4
)

var seedNow = time.Now // mockable

// seed fills the store with fake students, their school items and the parents following them.
func (cli *commandLine) seed(parents, students, items int) error {
	if parents < 1 || students < 1 || items < 0 {
		return errors.New("seed needs at least 1 parent and 1 student")
	}
	ctx := context.Background()
	gofakeit.Seed(seedNow().UnixNano())

	now := seedNow().UTC()
	since := now.AddDate(0, -1, 0)
	year := fmt.Sprintf("%d-%d", now.Year(), now.Year()+1)

	classIDs := make([]string, 0, students/studentsPerClass+1)
	for i := 0; i*studentsPerClass < students; i++ {
		classIDs = append(classIDs, fmt.Sprintf("class-%d", i+1))
	}

	studentIDs := make([]string, 0, students)
	for i := 0; i < students; i++ {
		st, err := cli.schoolRepo.CreateStudent(ctx, school.Student{
			ClassID:      classIDs[i/studentsPerClass],
			Name:         gofakeit.Name(),
			School:       gofakeit.Company(),
			AcademicYear: year,
		})
		if err != nil {
			return err
		}
		studentIDs = append(studentIDs, st.ID)

		for j := 0; j < items; j++ {
			if _, err = cli.schoolRepo.CreateComment(ctx, school.Comment{
				StudentID:   st.ID,
				Subject:     gofakeit.RandomString([]string{"Maths", "Français", "Histoire", "Sciences", "Anglais"}),
				Content:     gofakeit.Sentence(gofakeit.Number(6, 16)),
				TeacherName: gofakeit.Name(),
				CreatedAt:   gofakeit.DateRange(since, now),
			}); err != nil {
				return err
			}
		}
	}

	for _, classID := range classIDs {
		for j := 0; j < items; j++ {
			if _, err := cli.schoolRepo.CreateNotification(ctx, school.Notification{
				ClassID:   classID,
				Title:     gofakeit.Sentence(3),
				Content:   gofakeit.Sentence(gofakeit.Number(8, 20)),
				CreatedAt: gofakeit.DateRange(since, now),
			}); err != nil {
				return err
			}
		}
	}
	if items > 0 {
		if _, err := cli.schoolRepo.CreateBroadcast(ctx, school.Broadcast{
			ClassIDs:  classIDs,
			Title:     gofakeit.Sentence(3),
			Content:   gofakeit.Sentence(gofakeit.Number(8, 20)),
			CreatedAt: gofakeit.DateRange(since, now),
		}); err != nil {
			return err
		}
	}

	// students are dealt round-robin
	linked := make([][]string, parents)
	for i, id := range studentIDs {
		linked[i%parents] = append(linked[i%parents], id)
	}
	for i := 0; i < parents; i++ {
		usr, err := cli.usrSvc.Create(ctx, user.NewUser{
			Name:       gofakeit.Name(),
			Email:      fmt.Sprintf("parent%d.%s", i+1, gofakeit.Email()),
			Password:   seedPassword,
			Role:       user.RoleParent,
			StudentIDs: linked[i],
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "parent %s / %s follows %d student(s)\n", usr.Email, seedPassword, len(usr.StudentIDs))
	}
	return nil
}
