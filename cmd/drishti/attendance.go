package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/store"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "List recent verification sessions",
	RunE:  runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	attendanceCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	attendanceCmd.Flags().String("student", "", "Only show sessions for this student name")
	attendanceCmd.Flags().Bool("json", false, "Print as JSON")
}

func runAttendance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	name, _ := cmd.Flags().GetString("student")
	asJSON, _ := cmd.Flags().GetBool("json")

	var records []store.Attendance
	if name != "" {
		student, err := st.Students().GetByName(name)
		if err != nil {
			return fmt.Errorf("student %q: %w", name, err)
		}
		records, err = st.Attendance().ListByStudent(student.ID, limit)
		if err != nil {
			return err
		}
	} else {
		records, err = st.Attendance().List(limit)
		if err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tOUTCOME\tSTUDENT\tDISTANCE\tBLINKS\tHEAD\tSPOOF\tFRAMES\tREASON")
	for _, r := range records {
		distance := "-"
		if r.Distance != nil {
			distance = fmt.Sprintf("%.3f", *r.Distance)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%.2f\t%d\t%s\n",
			r.FinishedAt.Format("2006-01-02 15:04:05"), r.Outcome, r.Label, distance,
			r.Blinks, r.HeadMovement, r.SpoofConfidence, r.Frames, r.Reason)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d sessions\n", len(records))
	return nil
}
