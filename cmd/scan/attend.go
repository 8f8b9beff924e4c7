package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/attendance"
)

var attendCmd = &cobra.Command{
	Use:   "attend <course-code|course-id>",
	Short: "Scan a face and mark attendance for a course",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttend,
}

func init() {
	attendCmd.Flags().Int("retries", 2, "verification retries after a transient failure")
	rootCmd.AddCommand(attendCmd)
}

func runAttend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	retries, _ := cmd.Flags().GetInt("retries")

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	course, err := a.Store.GetCourseByCode(ctx, strings.ToUpper(args[0]))
	if errors.Is(err, attendance.ErrNotFound) {
		course, err = a.Store.GetCourse(ctx, args[0])
	}
	if err != nil {
		return fmt.Errorf("course %s: %w", args[0], err)
	}
	fmt.Printf("Course: %s - %s\n", course.Code, course.Name)

	out, err := runSession(ctx, a, attendance.Context{Mode: attendance.ModeAttendance, CourseID: course.ID}, retries)
	if err != nil {
		return err
	}
	return report(out)
}
