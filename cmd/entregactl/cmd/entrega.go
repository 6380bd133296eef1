package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// entregaCmd represents the entrega command
var entregaCmd = &cobra.Command{
	Use:   "entrega",
	Short: "Manage deliveries",
	Long:  `Create deliveries, list them, and confirm a delivery with signed recipient data.`,
}

// crearCmd represents the crear command
var crearCmd = &cobra.Command{
	Use:   "crear",
	Short: "Register a new delivery",
	Long: `Register a delivery for an order.

Example:
  entregactl entrega crear --direccion "Av. Siempre Viva 742" --pedido-id 19`,
	RunE: func(cmd *cobra.Command, args []string) error {
		direccion, _ := cmd.Flags().GetString("direccion")
		pedidoID, _ := cmd.Flags().GetInt64("pedido-id")

		status, resp, err := serverRequest("POST", "/entregas", map[string]interface{}{
			"direccion": direccion,
			"pedido_id": pedidoID,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusCreated {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Delivery created: id=%v estado=%s\n", resp["id"], stringField(resp, "estado_entrega"))
		}

		return nil
	},
}

// listarEntregasCmd represents the listar command
var listarEntregasCmd = &cobra.Command{
	Use:   "listar",
	Short: "List deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/entregas", nil)
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

		entregas, _ := resp["entregas"].([]interface{})
		fmt.Printf("Deliveries: %d\n", len(entregas))
		for _, e := range entregas {
			entry, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("  %v  pedido=%v  %s\n", entry["id"], entry["pedido_id"], stringField(entry, "estado_entrega"))
		}

		return nil
	},
}

// verCmd represents the ver command
var verCmd = &cobra.Command{
	Use:   "ver [entrega-id]",
	Short: "Show a single delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/entregas/"+args[0], nil)
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

// confirmarCmd represents the confirmar command
var confirmarCmd = &cobra.Command{
	Use:   "confirmar [entrega-id]",
	Short: "Confirm a delivery",
	Long: `Confirm a delivery with signed recipient data.

The confirmation payload is read from a JSON file (the confirmacion_info
object, including the firma_payload produced by the authorization service).

Example:
  entregactl entrega confirmar 19 --info confirmacion.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("invalid entrega id: %s", args[0])
		}
		infoFile, _ := cmd.Flags().GetString("info")
		if infoFile == "" {
			return fmt.Errorf("--info is required")
		}

		data, err := os.ReadFile(infoFile)
		if err != nil {
			return fmt.Errorf("failed to read info file: %w", err)
		}
		var info map[string]interface{}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("invalid info file: %w", err)
		}

		status, resp, err := serverRequest("POST", "/entrega/"+args[0]+"/confirmar",
			map[string]interface{}{"confirmacion_info": info})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Confirmation accepted: estado=%s\n", stringField(resp, "estado"))
			if task, ok := resp["task"].(map[string]interface{}); ok {
				fmt.Printf("  Task: %s\n", stringField(task, "task_id"))
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(entregaCmd)
	entregaCmd.AddCommand(crearCmd)
	entregaCmd.AddCommand(listarEntregasCmd)
	entregaCmd.AddCommand(verCmd)
	entregaCmd.AddCommand(confirmarCmd)

	// Flags for crear command
	crearCmd.Flags().String("direccion", "", "delivery address")
	crearCmd.Flags().Int64("pedido-id", 0, "order ID")
	crearCmd.MarkFlagRequired("direccion")
	crearCmd.MarkFlagRequired("pedido-id")

	// Flags for confirmar command
	confirmarCmd.Flags().String("info", "", "path to a JSON file with the confirmacion_info payload")
}
