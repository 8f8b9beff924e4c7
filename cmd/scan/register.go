package main

import (
	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/attendance"
	"faceattend/internal/model"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a student with a face scan",
	Example: `  faceattend-scan register --name "Jane Doe" --admission ADM-001 \
    --school "School of Computing Sciences" --course "CS201 - Data Structures"`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func init() {
	f := registerCmd.Flags()
	f.String("name", "", "full name")
	f.String("admission", "", "admission number")
	f.String("school", model.SchoolComputing, "school")
	f.StringArray("course", nil, `course as "CODE - Name", repeatable`)
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("admission")
	_ = registerCmd.MarkFlagRequired("course")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f := cmd.Flags()
	name, _ := f.GetString("name")
	admission, _ := f.GetString("admission")
	school, _ := f.GetString("school")
	courses, _ := f.GetStringArray("course")

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	target := attendance.Context{
		Mode: attendance.ModeRegistration,
		Registration: &model.Registration{
			Name:            name,
			AdmissionNumber: admission,
			School:          school,
			Courses:         courses,
		},
	}
	// registration is not retried: a partial write must not be repeated
	out, err := runSession(ctx, a, target, 0)
	if err != nil {
		return err
	}
	return report(out)
}
