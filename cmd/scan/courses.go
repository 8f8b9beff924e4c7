package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
)

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses attendance can be marked for",
	Args:  cobra.NoArgs,
	RunE:  runCourses,
}

func init() {
	rootCmd.AddCommand(coursesCmd)
}

func runCourses(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	courses, err := a.Pipeline.Courses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}
	if len(courses) == 0 {
		fmt.Println("No courses yet. Courses are created when students register.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME")
	for _, c := range courses {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Code, c.Name)
	}
	return w.Flush()
}
