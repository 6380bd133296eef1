package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// tareaCmd represents the tarea command
var tareaCmd = &cobra.Command{
	Use:   "tarea",
	Short: "Manage asynchronous tasks",
	Long:  `Dispatch tasks, check task state, and inspect task results.`,
}

// despacharCmd represents the despachar command
var despacharCmd = &cobra.Command{
	Use:   "despachar [tipo]",
	Short: "Dispatch an asynchronous task",
	Long: `Dispatch a task of the given tipo to the workers.

Examples:
  entregactl tarea despachar validar_inventario --producto-id 7 --cantidad 3
  entregactl tarea despachar generar_reporte --desde 2026-01-01 --hasta 2026-01-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tipo := args[0]

		body := map[string]interface{}{"tipo": tipo}
		switch tipo {
		case "validar_inventario":
			productoID, _ := cmd.Flags().GetInt64("producto-id")
			cantidad, _ := cmd.Flags().GetInt("cantidad")
			body["producto_id"] = productoID
			body["cantidad"] = cantidad
		case "generar_reporte":
			desde, _ := cmd.Flags().GetString("desde")
			hasta, _ := cmd.Flags().GetString("hasta")
			body["fecha_inicio"] = desde
			body["fecha_fin"] = hasta
		default:
			return fmt.Errorf("tipo no soportado por entregactl: %s", tipo)
		}

		status, resp, err := serverRequest("POST", "/tareas", body)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else if task, ok := resp["task"].(map[string]interface{}); ok {
			fmt.Printf("Task dispatched: %s (estado %s)\n", stringField(task, "task_id"), stringField(task, "estado"))
		} else {
			printOutput(resp)
		}

		return nil
	},
}

// estadoCmd represents the estado command
var estadoCmd = &cobra.Command{
	Use:   "estado [task-id]",
	Short: "Get the state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/tarea/"+args[0]+"/estado", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Task %s: %s\n", stringField(resp, "task_id"), stringField(resp, "estado"))
		}

		return nil
	},
}

// resultadoCmd represents the resultado command
var resultadoCmd = &cobra.Command{
	Use:   "resultado [task-id]",
	Short: "Get the full result of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/tarea/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		printOutput(resp)
		return nil
	},
}

// listarTareasCmd represents the listar command
var listarTareasCmd = &cobra.Command{
	Use:   "listar",
	Short: "List in-flight tasks",
	Long:  `List tasks currently tracked by the workers, plus the registered task names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/tareas", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		tareas, _ := resp["tareas"].([]interface{})
		fmt.Printf("In-flight tasks: %d\n", len(tareas))
		for _, t := range tareas {
			entry, ok := t.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("  %s  %-10s %s\n",
				stringField(entry, "task_id"), stringField(entry, "estado"), stringField(entry, "worker"))
		}
		if skipped, ok := resp["omitidas"].(float64); ok && skipped > 0 {
			fmt.Printf("Skipped entries (unreadable): %d\n", int(skipped))
		}
		if names, ok := resp["disponibles"].([]interface{}); ok {
			fmt.Println("Registered tasks:")
			for _, n := range names {
				fmt.Printf("  %v\n", n)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(tareaCmd)
	tareaCmd.AddCommand(despacharCmd)
	tareaCmd.AddCommand(estadoCmd)
	tareaCmd.AddCommand(resultadoCmd)
	tareaCmd.AddCommand(listarTareasCmd)

	// Flags for despachar command
	despacharCmd.Flags().Int64("producto-id", 0, "product ID for validar_inventario")
	despacharCmd.Flags().Int("cantidad", 0, "quantity for validar_inventario")
	despacharCmd.Flags().String("desde", "", "report start date (YYYY-MM-DD)")
	despacharCmd.Flags().String("hasta", "", "report end date (YYYY-MM-DD)")
}
