package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type InfoCommand struct {
	BaudRate int `long:"baud" default:"1000000" description:"Bus baud rate"`
}

func (c *InfoCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Z-Bot Servo Scan"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━"))
	fmt.Println()

	buses := findBuses(c.BaudRate)
	if len(buses) == 0 {
		fmt.Println("No Z-Bot servos found.")
		fmt.Println("Make sure the robot is connected and powered on.")
		return nil
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	unknownStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	for _, b := range buses {
		rows := make([][]string, 0, len(b.servos))
		known := make([]bool, 0, len(b.servos))
		for _, s := range b.servos {
			label := jointLabel(s.ID)
			known = append(known, label != "-")
			rows = append(rows, []string{strconv.Itoa(s.ID), fmt.Sprintf("%v", s.Model), label})
		}
		b.bus.Close()

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers("ID", "Model", "Joint").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return tableHeaderStyle
				}
				if col == 2 && row >= 0 && row < len(known) && !known[row] {
					return unknownStyle
				}
				return tableCellStyle
			})

		fmt.Println(subHeaderStyle.Render(b.port))
		fmt.Println(t.Render())

		if missing := missingIDs(b.servos); len(missing) > 0 {
			fmt.Print(dimStyle.Render("Missing:"))
			for _, id := range missing {
				fmt.Printf(" %d (%s)", id, jointLabel(int(id)))
			}
			fmt.Println()
		} else {
			fmt.Println(successStyle.Render("All joints present."))
		}
		fmt.Println()
	}
	return nil
}
