package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/identity"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List and manage enrolled students",
	RunE:  runStudentsList,
}

var studentsInspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Show a student's embeddings and how tightly they cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsInspect,
}

var studentsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a student and their embeddings",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsRemove,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsInspectCmd)
	studentsCmd.AddCommand(studentsRemoveCmd)
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	students, err := st.Students().List()
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	if len(students) == 0 {
		fmt.Println("No students enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMBEDDINGS\tENROLLED\tID")
	for _, s := range students {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Name, s.Embeddings, s.CreatedAt.Format("2006-01-02 15:04"), s.ID)
	}
	return w.Flush()
}

func runStudentsInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	student, err := st.Students().GetByName(args[0])
	if err != nil {
		return fmt.Errorf("student %q: %w", args[0], err)
	}
	stored, err := st.Embeddings().ListByStudent(student.ID)
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}

	fmt.Printf("Name:       %s\n", student.Name)
	fmt.Printf("ID:         %s\n", student.ID)
	fmt.Printf("Enrolled:   %s\n", student.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Embeddings: %d\n", len(stored))
	if len(stored) == 0 {
		return nil
	}

	embs := make([]identity.Embedding, len(stored))
	for i, e := range stored {
		embs[i] = e.Vector
	}
	centroid, err := identity.Centroid(embs)
	if err != nil {
		return err
	}
	fmt.Printf("Dims:       %d\n\n", len(centroid))

	// Distance of each sample to the centroid; outliers are candidates for
	// re-enrollment.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMBEDDING\tADDED\tDIST TO CENTROID")
	for _, e := range stored {
		d, err := identity.Distance(e.Vector, centroid)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%.4f\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), d)
	}
	return w.Flush()
}

func runStudentsRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	student, err := st.Students().GetByName(args[0])
	if err != nil {
		return fmt.Errorf("student %q: %w", args[0], err)
	}
	if err := st.Students().Delete(student.ID); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", student.Name)
	return nil
}
